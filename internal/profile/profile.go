// Package profile persists the single tunnel profile owned by this
// application: its protocol configuration reference and policy flags.
package profile

import (
	"time"

	"github.com/google/uuid"
)

// Rule actions and interface matches understood by the on-demand evaluator.
const (
	ActionConnect    = "connect"
	InterfaceTypeAny = "any"
)

// OnDemandRule makes the system bring the tunnel up automatically.
type OnDemandRule struct {
	Action             string `json:"action" yaml:"action"`
	InterfaceTypeMatch string `json:"interface_type_match" yaml:"interface_type_match"`
}

// ProtocolConfiguration identifies the engine that owns the profile and where
// its serialized tunnel configuration lives. The configuration text itself is
// kept in a Vault under ConfigRef, never in the profile record.
type ProtocolConfiguration struct {
	ProviderID         string `json:"provider_id" yaml:"provider_id"`
	ServerAddress      string `json:"server_address" yaml:"server_address"`
	ConfigRef          string `json:"config_ref,omitempty" yaml:"config_ref,omitempty"`
	IncludeAllNetworks bool   `json:"include_all_networks" yaml:"include_all_networks"`
	DisconnectOnSleep  bool   `json:"disconnect_on_sleep" yaml:"disconnect_on_sleep"`
}

// Profile is a persisted tunnel profile. Published profiles are treated as
// immutable; callers Clone before changing anything.
type Profile struct {
	ID              string                 `json:"id" yaml:"id"`
	Name            string                 `json:"name" yaml:"name"`
	Enabled         bool                   `json:"enabled" yaml:"enabled"`
	OnDemandEnabled bool                   `json:"on_demand_enabled" yaml:"on_demand_enabled"`
	OnDemandRules   []OnDemandRule         `json:"on_demand_rules,omitempty" yaml:"on_demand_rules,omitempty"`
	Protocol        *ProtocolConfiguration `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	UpdatedAt       time.Time              `json:"updated_at" yaml:"updated_at"`
}

// New returns an empty, unsaved profile with a fresh ID.
func New() *Profile {
	return &Profile{ID: uuid.NewString()}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.OnDemandRules != nil {
		c.OnDemandRules = append([]OnDemandRule(nil), p.OnDemandRules...)
	}
	if p.Protocol != nil {
		proto := *p.Protocol
		c.Protocol = &proto
	}
	return &c
}

// ConfigRef returns the vault reference of the protocol configuration, or "".
func (p *Profile) ConfigRef() string {
	if p == nil || p.Protocol == nil {
		return ""
	}
	return p.Protocol.ConfigRef
}
