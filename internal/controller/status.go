package controller

import (
	"unicode/utf8"

	"github.com/user/vpn-tunnel/internal/alwayson"
	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/session"
)

// CheckStatus reports the gateway and local address of the stored
// configuration together with the raw engine status text. done receives the
// empty Status when any of them is unavailable.
func (c *Controller) CheckStatus(done func(Status)) {
	if done == nil {
		return
	}
	if !c.submit(func() { done(c.checkStatus()) }) {
		done(Status{})
	}
}

func (c *Controller) checkStatus() Status {
	if c.current.Load() == nil || c.session == nil {
		return Status{}
	}

	cfg, err := c.storedConfiguration()
	if err != nil {
		logger.Debug("Status unavailable: %v", err)
		return Status{}
	}

	gateway, ok := cfg.FirstDNS()
	if !ok {
		logger.Debug("Status unavailable: configuration has no DNS server")
		return Status{}
	}
	local, ok := cfg.FirstAddress()
	if !ok {
		logger.Debug("Status unavailable: configuration has no address")
		return Status{}
	}

	raw, err := c.session.SendMessage(c.ctx, session.StatusProbe)
	if err != nil {
		logger.Debug("Failed to retrieve data from session: %v", err)
		return Status{}
	}
	if !utf8.Valid(raw) {
		logger.Warning("Failed to convert status data to text")
		return Status{}
	}

	return Status{
		Gateway:      gateway.String(),
		LocalAddress: local.String(),
		Raw:          string(raw),
	}
}

// SetAlwaysOn enables or disables the on-demand rule and persists it.
func (c *Controller) SetAlwaysOn(enabled bool) {
	ok := c.submit(func() {
		current := c.current.Load()
		if current == nil {
			logger.Warning("Always-on change ignored: not initialized")
			return
		}
		c.publish(c.policy.Set(c.ctx, current, enabled))
	})
	if !ok {
		logger.Warning("Always-on change ignored: controller closed")
	}
}

// GetAlwaysOn reports the on-demand flag of the published profile.
func (c *Controller) GetAlwaysOn() bool {
	return alwayson.Enabled(c.current.Load())
}

// HasAlwaysOnRules reports whether the published profile carries a rule.
func (c *Controller) HasAlwaysOnRules() bool {
	return alwayson.HasRules(c.current.Load())
}
