package tunnelcfg

import (
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// DefaultName is used when Params.Name is empty.
const DefaultName = "VPN Tunnel"

// Params are the inputs to Build.
type Params struct {
	Name          string
	PeerPublicKey string // base64
	EndpointHost  string // IP literal
	EndpointPort  int
	AllowedRanges []AddressRange
	DNS           []string
	LocalAddrV4   string // "10.64.0.2" or "10.64.0.2/32"
	LocalAddrV6   string // optional
	PrivateKey    wgtypes.Key
}

// Build produces a single-peer tunnel configuration. Identical params always
// produce an identical configuration, and therefore identical quick-config text.
func Build(p Params) (*TunnelConfiguration, error) {
	if p.PrivateKey == (wgtypes.Key{}) {
		return nil, fmt.Errorf("%w: private key is required", ErrInvalidParameter)
	}

	peerKey, err := wgtypes.ParseKey(strings.TrimSpace(p.PeerPublicKey))
	if err != nil {
		return nil, fmt.Errorf("%w: peer public key: %v", ErrInvalidParameter, err)
	}
	// Rejects low-order points, for which the shared secret is all zeros.
	if _, err := curve25519.X25519(p.PrivateKey[:], peerKey[:]); err != nil {
		return nil, fmt.Errorf("%w: peer public key: %v", ErrInvalidParameter, err)
	}

	host, err := netip.ParseAddr(strings.TrimSpace(p.EndpointHost))
	if err != nil {
		return nil, fmt.Errorf("%w: endpoint host: %v", ErrInvalidParameter, err)
	}
	if p.EndpointPort < 1 || p.EndpointPort > 65535 {
		return nil, fmt.Errorf("%w: endpoint port %d out of range", ErrInvalidParameter, p.EndpointPort)
	}

	if len(p.AllowedRanges) == 0 {
		return nil, fmt.Errorf("%w: at least one allowed range is required", ErrInvalidParameter)
	}
	allowed := make([]netip.Prefix, 0, len(p.AllowedRanges))
	for _, r := range p.AllowedRanges {
		prefix, err := r.Prefix()
		if err != nil {
			return nil, err
		}
		allowed = append(allowed, prefix)
	}

	var addresses []netip.Prefix
	v4, err := parseLocalAddress(p.LocalAddrV4, false)
	if err != nil {
		return nil, err
	}
	addresses = append(addresses, v4)
	if strings.TrimSpace(p.LocalAddrV6) != "" {
		v6, err := parseLocalAddress(p.LocalAddrV6, true)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, v6)
	}

	dns := make([]netip.Addr, 0, len(p.DNS))
	for _, s := range p.DNS {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%w: dns server %q: %v", ErrInvalidParameter, s, err)
		}
		dns = append(dns, addr)
	}

	name := p.Name
	if name == "" {
		name = DefaultName
	}

	return &TunnelConfiguration{
		Name: name,
		Interface: InterfaceConfiguration{
			PrivateKey: p.PrivateKey,
			Addresses:  addresses,
			DNS:        dns,
		},
		Peers: []PeerConfiguration{{
			PublicKey:  peerKey,
			Endpoint:   netip.AddrPortFrom(host, uint16(p.EndpointPort)),
			AllowedIPs: allowed,
		}},
	}, nil
}

// Prefix converts the range to a prefix, checking the family tag against the
// parsed address.
func (r AddressRange) Prefix() (netip.Prefix, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(r.Address))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: allowed range %q: %v", ErrInvalidParameter, r.Address, err)
	}
	addr = addr.Unmap()
	if addr.Is6() != r.IsIPv6 {
		return netip.Prefix{}, fmt.Errorf("%w: allowed range %q does not match its address family", ErrInvalidParameter, r.Address)
	}
	prefix, err := addr.Prefix(int(r.PrefixLength))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("%w: allowed range %s/%d: %v", ErrInvalidParameter, r.Address, r.PrefixLength, err)
	}
	// Keep the host bits the caller gave; only the length is validated above.
	return netip.PrefixFrom(addr, prefix.Bits()), nil
}

// RangeFromPrefix is the inverse of AddressRange.Prefix.
func RangeFromPrefix(p netip.Prefix) AddressRange {
	return AddressRange{
		Address:      p.Addr().String(),
		PrefixLength: uint8(p.Bits()),
		IsIPv6:       p.Addr().Is6(),
	}
}

// ParseRange accepts "a.b.c.d/n", "a.b.c.d", or the IPv6 equivalents.
func ParseRange(s string) (AddressRange, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return AddressRange{}, fmt.Errorf("%w: allowed range %q: %v", ErrInvalidParameter, s, err)
		}
		return RangeFromPrefix(p), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return AddressRange{}, fmt.Errorf("%w: allowed range %q: %v", ErrInvalidParameter, s, err)
	}
	return RangeFromPrefix(netip.PrefixFrom(addr, addr.BitLen())), nil
}

func parseLocalAddress(s string, wantV6 bool) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	family := "IPv4"
	if wantV6 {
		family = "IPv6"
	}

	var prefix netip.Prefix
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: local %s address %q: %v", ErrInvalidParameter, family, s, err)
		}
		prefix = p
	} else {
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("%w: local %s address %q: %v", ErrInvalidParameter, family, s, err)
		}
		prefix = netip.PrefixFrom(addr, addr.BitLen())
	}

	if prefix.Addr().Is6() != wantV6 {
		return netip.Prefix{}, fmt.Errorf("%w: local %s address %q has the wrong family", ErrInvalidParameter, family, s)
	}
	return prefix, nil
}
