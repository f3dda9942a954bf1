package controller

import (
	"fmt"
	"strings"

	"github.com/user/vpn-tunnel/internal/alwayson"
	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/profile"
	"github.com/user/vpn-tunnel/internal/tunnelcfg"
)

// Connect builds a configuration for req and either starts the engine with it
// (ReasonNormal) or sends it to the running engine (ReasonSwitching). Any
// failure is reported once through onFailure; there is no retry.
func (c *Controller) Connect(req ConnectRequest, onFailure func(error)) {
	if onFailure == nil {
		onFailure = func(error) {}
	}
	if !c.submit(func() { c.connect(req, onFailure) }) {
		onFailure(ErrClosed)
	}
}

func (c *Controller) connect(req ConnectRequest, onFailure func(error)) {
	if !c.initialized {
		logger.Error("Connect called before initialization")
		onFailure(ErrNotInitialized)
		return
	}
	logger.Connection("Connecting to %s:%d (reason %d)", req.ServerHost, req.ServerPort, req.Reason)

	current := c.current.Load()

	// The new profile never carries the previous reference; its vault entry
	// is removed once a profile pointing at the new entry is published, so a
	// failed connect leaves the running configuration readable.
	staleRef := current.ConfigRef()

	cfg, err := tunnelcfg.Build(c.buildParams(req))
	if err != nil {
		logger.Error("Invalid connect parameters: %v", err)
		onFailure(err)
		return
	}

	if req.Reason == ReasonSwitching {
		c.switchTo(current, staleRef, cfg, req, onFailure)
		return
	}

	saved, err := c.persist(current, cfg, req)
	if err != nil {
		logger.Error("Connect failed: %v", err)
		onFailure(err)
		return
	}
	c.publish(saved)
	c.dropRef(staleRef)

	if err := c.session.Start(c.ctx, cfg); err != nil {
		logger.Error("Failed to start tunnel: %v", err)
		onFailure(fmt.Errorf("failed to start tunnel: %w", err))
		return
	}
	c.setPhase(PhaseConnecting)
	logger.Connection("Tunnel start requested")
}

func (c *Controller) switchTo(current *profile.Profile, staleRef string, cfg *tunnelcfg.TunnelConfiguration, req ConnectRequest, onFailure func(error)) {
	if _, err := c.session.SendMessage(c.ctx, []byte(cfg.QuickConfig())); err != nil {
		logger.Error("Failed to reconfigure tunnel: %v", err)
		onFailure(fmt.Errorf("failed to reconfigure tunnel: %w", err))
		return
	}
	logger.Connection("Tunnel reconfigured in place")

	// The engine already runs the new configuration; storing it only keeps
	// CheckStatus and Resume in step with it.
	saved, err := c.persist(current, cfg, req)
	if err != nil {
		logger.Warning("Failed to persist switched configuration: %v", err)
		return
	}
	c.publish(saved)
	c.dropRef(staleRef)
}

func (c *Controller) buildParams(req ConnectRequest) tunnelcfg.Params {
	dns := []string{req.DNS}
	if strings.TrimSpace(req.SecondaryGateway) != "" {
		dns = append(dns, req.SecondaryGateway)
	}
	return tunnelcfg.Params{
		Name:          c.tunnelName,
		PeerPublicKey: req.ServerPublicKey,
		EndpointHost:  req.ServerHost,
		EndpointPort:  req.ServerPort,
		AllowedRanges: req.AllowedRanges,
		DNS:           dns,
		LocalAddrV4:   c.localV4,
		LocalAddrV6:   c.localV6,
		PrivateKey:    c.privateKey,
	}
}

// persist stores cfg in the vault and writes a profile pointing at it, with
// the always-on rule applied, in a single save. The reloaded profile is
// returned. On failure the new vault entry is removed and the store error is
// returned unchanged.
func (c *Controller) persist(current *profile.Profile, cfg *tunnelcfg.TunnelConfiguration, req ConnectRequest) (*profile.Profile, error) {
	ref := profile.NewRef()
	if err := c.vault.Put(ref, cfg.QuickConfig()); err != nil {
		return nil, &profile.SaveError{Reason: err}
	}

	next := current.Clone()
	if next == nil {
		next = c.store.Create()
	}
	next.Protocol = &profile.ProtocolConfiguration{
		ProviderID:         c.ownerID,
		ServerAddress:      cfg.Peers[0].EndpointString(),
		ConfigRef:          ref,
		IncludeAllNetworks: true,
		DisconnectOnSleep:  false,
	}
	next.Name = c.tunnelName
	next.Enabled = true
	alwayson.Apply(next, req.EnableAlwaysOn)

	if err := c.store.Save(c.ctx, next); err != nil {
		c.dropRef(ref)
		return nil, err
	}
	logger.Info("Saving the tunnel profile succeeded")

	reloaded, err := c.store.Reload(c.ctx, next)
	if err != nil {
		c.dropRef(ref)
		return nil, err
	}
	logger.Info("Loading the tunnel profile succeeded")
	return reloaded, nil
}

func (c *Controller) dropRef(ref string) {
	if ref == "" {
		return
	}
	if err := c.vault.Delete(ref); err != nil {
		logger.Warning("Failed to remove unused configuration: %v", err)
	}
}

// Disconnect turns always-on off, since the rule would bring the tunnel right
// back, and stops the engine. The stop is issued even if saving fails.
func (c *Controller) Disconnect() {
	if !c.submit(c.disconnect) {
		logger.Warning("Disconnect ignored: controller closed")
	}
}

func (c *Controller) disconnect() {
	logger.Connection("Disconnecting")

	if current := c.current.Load(); current != nil {
		c.publish(c.policy.Set(c.ctx, current, false))
	}

	c.setPhase(PhaseDisconnecting)
	if err := c.session.Stop(c.ctx); err != nil {
		logger.Error("Failed to stop tunnel: %v", err)
	}
}

// Resume starts the engine with the persisted configuration. It is what the
// on-demand rule triggers when the network changes.
func (c *Controller) Resume(onFailure func(error)) {
	if onFailure == nil {
		onFailure = func(error) {}
	}
	if !c.submit(func() { c.resume(onFailure) }) {
		onFailure(ErrClosed)
	}
}

func (c *Controller) resume(onFailure func(error)) {
	if !c.initialized {
		onFailure(ErrNotInitialized)
		return
	}

	cfg, err := c.storedConfiguration()
	if err != nil {
		logger.Warning("Cannot resume tunnel: %v", err)
		onFailure(err)
		return
	}

	logger.Connection("Resuming tunnel")
	if err := c.session.Start(c.ctx, cfg); err != nil {
		logger.Error("Failed to resume tunnel: %v", err)
		onFailure(fmt.Errorf("failed to start tunnel: %w", err))
		return
	}
	c.setPhase(PhaseConnecting)
}

// storedConfiguration reads back the configuration the published profile
// refers to.
func (c *Controller) storedConfiguration() (*tunnelcfg.TunnelConfiguration, error) {
	ref := c.current.Load().ConfigRef()
	if ref == "" {
		return nil, fmt.Errorf("no stored configuration")
	}
	text, err := c.vault.Get(ref)
	if err != nil {
		return nil, err
	}
	return tunnelcfg.ParseQuickConfig(c.tunnelName, text)
}
