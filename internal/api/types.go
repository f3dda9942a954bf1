package api

import (
	"time"

	"github.com/user/vpn-tunnel/internal/controller"
)

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	Phase            string     `json:"phase"`
	ConnectedSince   *time.Time `json:"connected_since,omitempty"`
	AlwaysOn         bool       `json:"always_on"`
	HasAlwaysOnRules bool       `json:"has_always_on_rules"`
	Gateway          string     `json:"gateway,omitempty"`
	LocalAddress     string     `json:"local_address,omitempty"`
	LastHandshake    *time.Time `json:"last_handshake,omitempty"`
	RxBytes          uint64     `json:"rx_bytes"`
	TxBytes          uint64     `json:"tx_bytes"`
}

// ConnectRequest is the body of POST /v1/connect.
type ConnectRequest = controller.ConnectRequest

// AlwaysOn is the body of GET and PUT /v1/always-on.
type AlwaysOn struct {
	Enabled  bool `json:"enabled"`
	HasRules bool `json:"has_rules"`
}

type errorResponse struct {
	Error string `json:"error"`
}
