// Package alwayson manages the on-demand rule that brings the tunnel back up
// whenever the network changes.
package alwayson

import (
	"context"

	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/profile"
)

// Rule is the single on-demand rule attached to a profile when always-on is
// enabled: reconnect on any interface change.
var Rule = profile.OnDemandRule{
	Action:             profile.ActionConnect,
	InterfaceTypeMatch: profile.InterfaceTypeAny,
}

// Apply sets the always-on state of p in memory. It is idempotent: enabling
// twice leaves exactly one rule, disabling leaves none.
func Apply(p *profile.Profile, enabled bool) {
	if p == nil {
		return
	}
	if enabled {
		p.OnDemandRules = []profile.OnDemandRule{Rule}
		p.OnDemandEnabled = true
		return
	}
	p.OnDemandRules = nil
	p.OnDemandEnabled = false
}

// Enabled reports the on-demand flag of p.
func Enabled(p *profile.Profile) bool {
	return p != nil && p.OnDemandEnabled
}

// HasRules reports whether p carries any on-demand rule.
func HasRules(p *profile.Profile) bool {
	return p != nil && len(p.OnDemandRules) > 0
}

// Policy persists always-on changes through a profile store.
type Policy struct {
	store profile.Store
}

// New creates a policy backed by store.
func New(store profile.Store) *Policy {
	return &Policy{store: store}
}

// Set applies enabled to a copy of p, saves and reloads it. The reloaded
// profile is returned on success. Persistence failures are logged and the
// unchanged p is returned, since the rule is advisory.
func (pol *Policy) Set(ctx context.Context, p *profile.Profile, enabled bool) *profile.Profile {
	if p == nil {
		logger.Warning("Always-on change ignored: no profile")
		return nil
	}

	next := p.Clone()
	Apply(next, enabled)

	if err := pol.store.Save(ctx, next); err != nil {
		logger.Error("Failed to save always-on=%v: %v", enabled, err)
		return p
	}

	reloaded, err := pol.store.Reload(ctx, next)
	if err != nil {
		logger.Error("Failed to reload profile after always-on change: %v", err)
		return p
	}

	logger.Info("Always-on %s", onOff(enabled))
	return reloaded
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
