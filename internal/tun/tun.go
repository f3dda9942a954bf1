// Package tun creates the tunnel interface and manages its addresses and
// routes.
package tun

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"golang.zx2c4.com/wireguard/tun"

	"github.com/user/vpn-tunnel/internal/logger"
)

// ErrNotCreated is returned when the adapter has no device yet.
var ErrNotCreated = errors.New("adapter not created")

// Config represents TUN adapter configuration.
type Config struct {
	Name   string
	MTU    int
	Metric int
}

// Adapter is a TUN device plus the addresses and routes installed for it.
type Adapter struct {
	mu        sync.Mutex
	name      string
	device    tun.Device
	addresses []netip.Prefix
	routes    []netip.Prefix
	pinned    []netip.Addr
	mtu       int
	metric    int
	isUp      bool
}

// New returns an adapter for cfg. Nothing is created until Create.
func New(cfg Config) *Adapter {
	if cfg.Name == "" {
		cfg.Name = defaultInterfaceName
	}
	if cfg.MTU == 0 {
		cfg.MTU = 1420
	}
	if cfg.Metric == 0 {
		cfg.Metric = 5
	}

	return &Adapter{
		name:   normalizeInterfaceName(cfg.Name),
		mtu:    cfg.MTU,
		metric: cfg.Metric,
	}
}

// Create creates the TUN device.
func (a *Adapter) Create() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device != nil {
		return fmt.Errorf("adapter already created")
	}

	device, err := tun.CreateTUN(a.name, a.mtu)
	if err != nil {
		return fmt.Errorf("failed to create TUN device: %w", err)
	}
	a.device = device

	if realName, err := device.Name(); err == nil {
		a.name = realName
	}
	logger.Info("Created TUN device %s (mtu %d)", a.name, a.mtu)
	return nil
}

// Configure assigns addresses to the interface.
func (a *Adapter) Configure(addresses []netip.Prefix) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return ErrNotCreated
	}
	for _, prefix := range addresses {
		if err := a.assignAddress(prefix); err != nil {
			return err
		}
		a.addresses = append(a.addresses, prefix)
	}
	return nil
}

// SetRoutes replaces the routes through the interface with prefixes. A
// default route is installed as two halves so the existing default route
// stays in place for traffic that must bypass the tunnel.
func (a *Adapter) SetRoutes(prefixes []netip.Prefix) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return ErrNotCreated
	}

	for _, route := range a.routes {
		if err := a.deleteRoute(route); err != nil {
			logger.Warning("Failed to remove route %s: %v", route, err)
		}
	}
	a.routes = nil

	for _, route := range SplitDefault(prefixes) {
		if err := a.addRoute(route); err != nil {
			return fmt.Errorf("failed to add route %s: %w", route, err)
		}
		a.routes = append(a.routes, route)
	}
	return nil
}

// PinEndpoint keeps traffic to addr on the route it uses now, so the
// encrypted packets never loop back into the tunnel.
func (a *Adapter) PinEndpoint(addr netip.Addr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.pinHost(addr); err != nil {
		return fmt.Errorf("failed to pin endpoint %s: %w", addr, err)
	}
	a.pinned = append(a.pinned, addr)
	return nil
}

// Close removes installed routes and destroys the device.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, route := range a.routes {
		a.deleteRoute(route)
	}
	a.routes = nil
	for _, addr := range a.pinned {
		a.unpinHost(addr)
	}
	a.pinned = nil
	a.addresses = nil

	if a.device != nil {
		a.device.Close()
		a.device = nil
	}

	a.isUp = false
	return nil
}

// Device returns the underlying TUN device.
func (a *Adapter) Device() tun.Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// Name returns the adapter name.
func (a *Adapter) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

// Addresses returns the assigned addresses.
func (a *Adapter) Addresses() []netip.Prefix {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]netip.Prefix(nil), a.addresses...)
}

// Routes returns the installed routes.
func (a *Adapter) Routes() []netip.Prefix {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]netip.Prefix(nil), a.routes...)
}

// MTU returns the MTU.
func (a *Adapter) MTU() int {
	return a.mtu
}

// IsUp returns whether the adapter is up.
func (a *Adapter) IsUp() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isUp
}

var (
	lowerV4 = netip.MustParsePrefix("0.0.0.0/1")
	upperV4 = netip.MustParsePrefix("128.0.0.0/1")
	lowerV6 = netip.MustParsePrefix("::/1")
	upperV6 = netip.MustParsePrefix("8000::/1")
)

// SplitDefault masks every prefix and replaces default routes with their two
// /1 halves. Order is preserved and duplicates are dropped.
func SplitDefault(prefixes []netip.Prefix) []netip.Prefix {
	seen := make(map[netip.Prefix]bool, len(prefixes))
	out := make([]netip.Prefix, 0, len(prefixes)+2)
	add := func(p netip.Prefix) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range prefixes {
		p = p.Masked()
		switch {
		case p.Bits() == 0 && p.Addr().Is4():
			add(lowerV4)
			add(upperV4)
		case p.Bits() == 0:
			add(lowerV6)
			add(upperV6)
		default:
			add(p)
		}
	}
	return out
}

// Covers reports whether any prefix contains addr.
func Covers(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
