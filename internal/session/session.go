// Package session defines the control channel between the controller and the
// tunnel engine: raw engine states, the Session contract, and the status probe.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/user/vpn-tunnel/internal/tunnelcfg"
)

// State is the raw engine state as reported by the session.
type State int

const (
	StateInvalid State = iota
	StateDisconnected
	StateConnecting
	StateConnected
	StateReasserting
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReasserting:
		return "reasserting"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// StatusProbe is the one-byte message that asks the engine for its status text.
var StatusProbe = []byte{0}

// ErrNotRunning is returned by SendMessage when no engine is running.
var ErrNotRunning = errors.New("tunnel engine is not running")

// Session is the channel to the tunnel engine.
type Session interface {
	// State returns the current raw state.
	State() State

	// ConnectedDate returns when the session last entered StateConnected,
	// or the zero time.
	ConnectedDate() time.Time

	// Start brings the engine up with cfg.
	Start(ctx context.Context, cfg *tunnelcfg.TunnelConfiguration) error

	// Stop tears the engine down.
	Stop(ctx context.Context) error

	// SendMessage delivers msg to the running engine. StatusProbe returns the
	// status text; any other payload is quick-config text applied in place
	// and yields no response.
	SendMessage(ctx context.Context, msg []byte) ([]byte, error)

	// Subscribe returns a stream of raw state changes and a cancel func.
	Subscribe() (<-chan State, func())
}
