//go:build linux

package tun

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

const defaultInterfaceName = "vpntun0"

// normalizeInterfaceName returns the name as-is on Linux (no restrictions).
func normalizeInterfaceName(name string) string {
	return name
}

func (a *Adapter) link() (netlink.Link, error) {
	link, err := netlink.LinkByName(a.name)
	if err != nil {
		return nil, fmt.Errorf("failed to get interface %s: %w", a.name, err)
	}
	return link, nil
}

func (a *Adapter) assignAddress(prefix netip.Prefix) error {
	link, err := a.link()
	if err != nil {
		return err
	}
	addr := &netlink.Addr{IPNet: ipNet(prefix)}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("failed to set IP address %s: %w", prefix, err)
	}
	return nil
}

func (a *Adapter) addRoute(prefix netip.Prefix) error {
	link, err := a.link()
	if err != nil {
		return err
	}
	return netlink.RouteReplace(&netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       ipNet(prefix),
		Priority:  a.metric,
	})
}

func (a *Adapter) deleteRoute(prefix netip.Prefix) error {
	link, err := a.link()
	if err != nil {
		return err
	}
	return netlink.RouteDel(&netlink.Route{
		LinkIndex: link.Attrs().Index,
		Dst:       ipNet(prefix),
		Priority:  a.metric,
	})
}

func (a *Adapter) pinHost(addr netip.Addr) error {
	routes, err := netlink.RouteGet(net.IP(addr.AsSlice()))
	if err != nil {
		return err
	}
	if len(routes) == 0 {
		return fmt.Errorf("no route to %s", addr)
	}
	current := routes[0]
	return netlink.RouteReplace(&netlink.Route{
		LinkIndex: current.LinkIndex,
		Dst:       ipNet(netip.PrefixFrom(addr, addr.BitLen())),
		Gw:        current.Gw,
	})
}

func (a *Adapter) unpinHost(addr netip.Addr) error {
	return netlink.RouteDel(&netlink.Route{
		Dst: ipNet(netip.PrefixFrom(addr, addr.BitLen())),
	})
}

// Up brings the adapter up (Linux).
func (a *Adapter) Up() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return ErrNotCreated
	}

	link, err := a.link()
	if err != nil {
		return err
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("failed to bring interface up: %w", err)
	}

	a.isUp = true
	return nil
}

// Down brings the adapter down (Linux).
func (a *Adapter) Down() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil
	}

	if link, err := a.link(); err == nil {
		netlink.LinkSetDown(link)
	}

	a.isUp = false
	return nil
}

func ipNet(prefix netip.Prefix) *net.IPNet {
	return &net.IPNet{
		IP:   net.IP(prefix.Addr().AsSlice()),
		Mask: net.CIDRMask(prefix.Bits(), prefix.Addr().BitLen()),
	}
}
