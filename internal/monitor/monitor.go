// Package monitor turns raw session states into a verified connected signal.
//
// A raw "connected" is not trusted on its own: the monitor waits SettleDelay,
// probes the session and only reports connected once the peer handshake has
// happened. A raw "disconnected" is reported at once. Every state change bumps
// a generation counter, so a verification loop started for an older state
// never reports anything.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/session"
)

// DefaultSettleDelay is the wait between a raw connected state and the first
// probe. Probing immediately has destabilized fresh tunnels on some platforms;
// it is a workaround, not a correctness guarantee.
const DefaultSettleDelay = 500 * time.Millisecond

// Target answers status probes. Poll reports the current raw state of the
// session and the raw status text, or session.StateInvalid when the session
// is gone. done may be called from any goroutine, exactly once.
type Target interface {
	Poll(done func(state session.State, raw string))
}

// Options configure a Monitor.
type Options struct {
	SettleDelay time.Duration
	Target      Target
	// OnChange receives the verified signal. It is called with the monitor
	// lock held and must not call back into the monitor.
	OnChange func(connected bool)
}

// Monitor debounces raw session states.
type Monitor struct {
	mu         sync.Mutex
	delay      time.Duration
	target     Target
	onChange   func(bool)
	generation uint64
	timer      *time.Timer
	closed     bool
}

// New creates a monitor.
func New(opts Options) *Monitor {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Monitor{
		delay:    opts.SettleDelay,
		target:   opts.Target,
		onChange: opts.OnChange,
	}
}

// Run feeds every state received on events to Handle until ctx is done or
// events is closed.
func (m *Monitor) Run(ctx context.Context, events <-chan session.State) {
	defer logger.Recover("status monitor")
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-events:
			if !ok {
				return
			}
			m.Handle(state)
		}
	}
}

// Handle processes one raw state.
func (m *Monitor) Handle(state session.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	switch state {
	case session.StateDisconnected:
		m.supersedeLocked()
		logger.Connection("Tunnel disconnected")
		m.emitLocked(false)
	case session.StateConnected:
		gen := m.supersedeLocked()
		logger.Connection("Tunnel reports connected, verifying handshake")
		m.scheduleLocked(gen)
	default:
		logger.Debug("Ignoring raw tunnel state: %s", state)
	}
}

// Close cancels any pending verification. Later events are ignored.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.supersedeLocked()
}

func (m *Monitor) supersedeLocked() uint64 {
	m.generation++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	return m.generation
}

func (m *Monitor) scheduleLocked(gen uint64) {
	m.timer = time.AfterFunc(m.delay, func() { m.poll(gen) })
}

func (m *Monitor) currentLocked(gen uint64) bool {
	return !m.closed && gen == m.generation
}

func (m *Monitor) poll(gen uint64) {
	defer logger.Recover("status poll")

	m.mu.Lock()
	current := m.currentLocked(gen)
	target := m.target
	m.mu.Unlock()

	if !current {
		return
	}
	if target == nil {
		logger.Debug("Status poll skipped: no target")
		return
	}

	target.Poll(func(state session.State, raw string) {
		m.pollDone(gen, state, raw)
	})
}

func (m *Monitor) pollDone(gen uint64, state session.State, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.currentLocked(gen) {
		return
	}

	if state != session.StateConnected {
		logger.Debug("Verification stopped, session is %s", state)
		return
	}

	if session.LastHandshake(raw) > 0 {
		m.timer = nil
		logger.Connection("Handshake confirmed, tunnel connected")
		m.emitLocked(true)
		return
	}

	logger.Debug("No handshake yet, checking again in %v", m.delay)
	m.scheduleLocked(gen)
}

func (m *Monitor) emitLocked(connected bool) {
	if m.onChange != nil {
		m.onChange(connected)
	}
}
