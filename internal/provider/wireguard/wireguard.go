// Package wireguard is the tunnel engine: a userspace wireguard-go device on
// a TUN interface, driven through the session contract.
package wireguard

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"

	"github.com/user/vpn-tunnel/internal/dns"
	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/session"
	"github.com/user/vpn-tunnel/internal/tun"
	"github.com/user/vpn-tunnel/internal/tunnelcfg"
)

// Options configure the engine.
type Options struct {
	InterfaceName string
	MTU           int
	Metric        int
	// Verbose forwards wireguard-go debug output to the log.
	Verbose bool
}

// Provider runs one wireguard-go device at a time.
type Provider struct {
	*session.Broadcaster

	mu      sync.Mutex
	opts    Options
	adapter *tun.Adapter
	device  *device.Device
	config  *tunnelcfg.TunnelConfiguration
	dns     *dns.Manager
}

// New creates an idle provider.
func New(opts Options) *Provider {
	return &Provider{
		Broadcaster: session.NewBroadcaster(),
		opts:        opts,
		dns:         dns.NewManager(),
	}
}

// Start brings up a device for cfg. A running device is torn down first.
func (p *Provider) Start(ctx context.Context, cfg *tunnelcfg.TunnelConfiguration) error {
	if cfg == nil || len(cfg.Peers) == 0 {
		return fmt.Errorf("tunnel configuration has no peer")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device != nil {
		logger.Info("Restarting WireGuard device")
		p.cleanup()
	}

	p.SetState(session.StateConnecting)
	logger.Connection("Initializing WireGuard tunnel to %s", cfg.Peers[0].EndpointString())

	mtu := cfg.Interface.MTU
	if mtu == 0 {
		mtu = p.opts.MTU
	}
	p.adapter = tun.New(tun.Config{
		Name:   p.opts.InterfaceName,
		MTU:    mtu,
		Metric: p.opts.Metric,
	})

	if err := p.adapter.Create(); err != nil {
		return p.fail("create TUN adapter", err)
	}
	if err := p.adapter.Configure(cfg.Interface.Addresses); err != nil {
		return p.fail("configure adapter", err)
	}

	p.device = device.NewDevice(p.adapter.Device(), conn.NewDefaultBind(), p.deviceLogger())

	if err := p.device.IpcSet(cfg.UAPI()); err != nil {
		return p.fail("apply config", err)
	}
	if err := p.device.Up(); err != nil {
		return p.fail("bring device up", err)
	}
	if err := p.adapter.Up(); err != nil {
		return p.fail("bring adapter up", err)
	}
	if err := p.applyRoutes(cfg); err != nil {
		return p.fail("configure routes", err)
	}
	p.applyDNS(cfg)

	p.config = cfg
	p.SetState(session.StateConnected)
	logger.Connection("WireGuard tunnel established on %s", p.adapter.Name())

	logger.SafeGo("wireguard device watch", func() { p.watch(p.device) })
	return nil
}

// Stop tears the device down. Stopping an idle provider is a no-op.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		p.SetState(session.StateDisconnected)
		return nil
	}

	p.SetState(session.StateDisconnecting)
	p.cleanup()
	p.SetState(session.StateDisconnected)
	logger.Connection("WireGuard tunnel stopped")
	return nil
}

// SendMessage answers session.StatusProbe with the device status text. Any
// other message is quick-config text that reconfigures the running device.
func (p *Provider) SendMessage(ctx context.Context, msg []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.device == nil {
		return nil, session.ErrNotRunning
	}

	if bytes.Equal(msg, session.StatusProbe) {
		status, err := p.device.IpcGet()
		if err != nil {
			return nil, fmt.Errorf("failed to read device status: %w", err)
		}
		return []byte(status), nil
	}

	name := tunnelcfg.DefaultName
	if p.config != nil {
		name = p.config.Name
	}
	cfg, err := tunnelcfg.ParseQuickConfig(name, string(msg))
	if err != nil {
		return nil, err
	}
	if len(cfg.Peers) == 0 {
		return nil, fmt.Errorf("%w: configuration has no peer", tunnelcfg.ErrInvalidParameter)
	}

	p.SetState(session.StateReasserting)
	if err := p.device.IpcSet(cfg.UAPI()); err != nil {
		p.SetState(session.StateConnected)
		return nil, fmt.Errorf("failed to apply config: %w", err)
	}
	if err := p.applyRoutes(cfg); err != nil {
		logger.Warning("Failed to update routes: %v", err)
	}
	p.applyDNS(cfg)
	p.config = cfg
	p.SetState(session.StateConnected)
	logger.Connection("WireGuard tunnel reconfigured for %s", cfg.Peers[0].EndpointString())
	return nil, nil
}

func (p *Provider) applyRoutes(cfg *tunnelcfg.TunnelConfiguration) error {
	allowed := cfg.Peers[0].AllowedIPs
	routes := tun.SplitDefault(allowed)
	if err := p.adapter.SetRoutes(routes); err != nil {
		return err
	}
	endpoint := cfg.Peers[0].Endpoint.Addr()
	if endpoint.IsValid() && tun.Covers(routes, endpoint) {
		if err := p.adapter.PinEndpoint(endpoint); err != nil {
			return err
		}
	}
	return nil
}

// applyDNS is best effort: a tunnel without tunnel DNS still carries traffic.
func (p *Provider) applyDNS(cfg *tunnelcfg.TunnelConfiguration) {
	if len(cfg.Interface.DNS) == 0 {
		return
	}
	if err := p.dns.Configure(p.adapter.Name(), cfg.Interface.DNS); err != nil {
		logger.Warning("Failed to configure DNS: %v", err)
	}
}

// watch reports an unexpected device shutdown.
func (p *Provider) watch(dev *device.Device) {
	<-dev.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != dev {
		return
	}
	logger.Warning("WireGuard device closed unexpectedly")
	p.cleanup()
	p.SetState(session.StateDisconnected)
}

func (p *Provider) fail(step string, err error) error {
	logger.Error("Failed to %s: %v", step, err)
	p.cleanup()
	p.SetState(session.StateDisconnected)
	return fmt.Errorf("failed to %s: %w", step, err)
}

func (p *Provider) cleanup() {
	if err := p.dns.Reset(); err != nil {
		logger.Warning("Failed to restore DNS: %v", err)
	}

	dev := p.device
	p.device = nil
	p.config = nil
	if dev != nil {
		dev.Close()
	}

	if p.adapter != nil {
		p.adapter.Down()
		p.adapter.Close()
		p.adapter = nil
	}
}

func (p *Provider) deviceLogger() *device.Logger {
	l := &device.Logger{
		Verbosef: device.DiscardLogf,
		Errorf: func(format string, args ...any) {
			logger.Error("(wireguard) "+format, args...)
		},
	}
	if p.opts.Verbose {
		l.Verbosef = func(format string, args ...any) {
			logger.Debug("(wireguard) "+format, args...)
		}
	}
	return l
}
