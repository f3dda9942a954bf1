// Package tunnelcfg builds and serializes WireGuard tunnel configurations.
//
// A TunnelConfiguration is produced by Build from caller parameters and can be
// rendered in two forms: quick-config text (the [Interface]/[Peer] format that
// is persisted and sent to a running engine for in-place reconfiguration) and
// the wireguard-go UAPI "set" body applied to a device.
package tunnelcfg

import (
	"errors"
	"net"
	"net/netip"
	"strconv"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// ErrInvalidParameter is returned when a build parameter cannot be parsed.
var ErrInvalidParameter = errors.New("invalid parameter")

// AddressRange is an allowed IP range as supplied by the caller.
type AddressRange struct {
	Address      string `json:"address" yaml:"address"`
	PrefixLength uint8  `json:"prefix_length" yaml:"prefix_length"`
	IsIPv6       bool   `json:"is_ipv6" yaml:"is_ipv6"`
}

// InterfaceConfiguration is the local side of the tunnel.
type InterfaceConfiguration struct {
	PrivateKey wgtypes.Key
	Addresses  []netip.Prefix
	DNS        []netip.Addr
	ListenPort int
	MTU        int
}

// PeerConfiguration is the remote side of the tunnel.
type PeerConfiguration struct {
	PublicKey           wgtypes.Key
	Endpoint            netip.AddrPort
	AllowedIPs          []netip.Prefix
	PersistentKeepalive int
}

// EndpointString returns the endpoint as host:port, or "" when unset.
func (p *PeerConfiguration) EndpointString() string {
	if !p.Endpoint.IsValid() {
		return ""
	}
	return net.JoinHostPort(p.Endpoint.Addr().String(), strconv.Itoa(int(p.Endpoint.Port())))
}

// TunnelConfiguration is a named interface plus its peers.
type TunnelConfiguration struct {
	Name      string
	Interface InterfaceConfiguration
	Peers     []PeerConfiguration
}

// FirstDNS returns the first DNS server, if any.
func (c *TunnelConfiguration) FirstDNS() (netip.Addr, bool) {
	if len(c.Interface.DNS) == 0 {
		return netip.Addr{}, false
	}
	return c.Interface.DNS[0], true
}

// FirstAddress returns the first local address, if any.
func (c *TunnelConfiguration) FirstAddress() (netip.Addr, bool) {
	if len(c.Interface.Addresses) == 0 {
		return netip.Addr{}, false
	}
	return c.Interface.Addresses[0].Addr(), true
}
