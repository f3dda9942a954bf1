package tunnelcfg

import (
	"bufio"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// QuickConfig renders the configuration in wg-quick text form. Output is
// stable: fields are written in a fixed order and lists keep their order.
func (c *TunnelConfiguration) QuickConfig() string {
	var b strings.Builder

	b.WriteString("[Interface]\n")
	fmt.Fprintf(&b, "PrivateKey = %s\n", c.Interface.PrivateKey.String())
	if len(c.Interface.Addresses) > 0 {
		fmt.Fprintf(&b, "Address = %s\n", joinPrefixes(c.Interface.Addresses))
	}
	if len(c.Interface.DNS) > 0 {
		addrs := make([]string, len(c.Interface.DNS))
		for i, a := range c.Interface.DNS {
			addrs[i] = a.String()
		}
		fmt.Fprintf(&b, "DNS = %s\n", strings.Join(addrs, ", "))
	}
	if c.Interface.ListenPort > 0 {
		fmt.Fprintf(&b, "ListenPort = %d\n", c.Interface.ListenPort)
	}
	if c.Interface.MTU > 0 {
		fmt.Fprintf(&b, "MTU = %d\n", c.Interface.MTU)
	}

	for _, peer := range c.Peers {
		b.WriteString("\n[Peer]\n")
		fmt.Fprintf(&b, "PublicKey = %s\n", peer.PublicKey.String())
		if len(peer.AllowedIPs) > 0 {
			fmt.Fprintf(&b, "AllowedIPs = %s\n", joinPrefixes(peer.AllowedIPs))
		}
		if ep := peer.EndpointString(); ep != "" {
			fmt.Fprintf(&b, "Endpoint = %s\n", ep)
		}
		if peer.PersistentKeepalive > 0 {
			fmt.Fprintf(&b, "PersistentKeepalive = %d\n", peer.PersistentKeepalive)
		}
	}

	return b.String()
}

// ParseQuickConfig parses text produced by QuickConfig (or a hand-written
// wg-quick file restricted to the same keys). Endpoints must be IP literals.
func ParseQuickConfig(name, text string) (*TunnelConfiguration, error) {
	cfg := &TunnelConfiguration{Name: name}

	const (
		sectionNone = iota
		sectionInterface
		sectionPeer
	)
	section := sectionNone
	var peer *PeerConfiguration
	sawInterface := false

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "[interface]":
			section = sectionInterface
			sawInterface = true
			continue
		case "[peer]":
			cfg.Peers = append(cfg.Peers, PeerConfiguration{})
			peer = &cfg.Peers[len(cfg.Peers)-1]
			section = sectionPeer
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: quick config line %d: expected key = value", ErrInvalidParameter, lineNo)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch section {
		case sectionInterface:
			err = parseInterfaceField(&cfg.Interface, key, value)
		case sectionPeer:
			err = parsePeerField(peer, key, value)
		default:
			err = fmt.Errorf("key %q outside of a section", key)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: quick config line %d: %v", ErrInvalidParameter, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !sawInterface {
		return nil, fmt.Errorf("%w: quick config has no [Interface] section", ErrInvalidParameter)
	}
	return cfg, nil
}

func parseInterfaceField(iface *InterfaceConfiguration, key, value string) error {
	switch key {
	case "privatekey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("private key: %v", err)
		}
		iface.PrivateKey = k
	case "address":
		prefixes, err := parsePrefixList(value)
		if err != nil {
			return err
		}
		iface.Addresses = append(iface.Addresses, prefixes...)
	case "dns":
		for _, s := range splitList(value) {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return fmt.Errorf("dns: %v", err)
			}
			iface.DNS = append(iface.DNS, addr)
		}
	case "listenport":
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("listen port: %v", err)
		}
		iface.ListenPort = int(port)
	case "mtu":
		mtu, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("mtu: %v", err)
		}
		iface.MTU = mtu
	default:
		return fmt.Errorf("unknown interface key %q", key)
	}
	return nil
}

func parsePeerField(peer *PeerConfiguration, key, value string) error {
	switch key {
	case "publickey":
		k, err := wgtypes.ParseKey(value)
		if err != nil {
			return fmt.Errorf("public key: %v", err)
		}
		peer.PublicKey = k
	case "allowedips":
		prefixes, err := parsePrefixList(value)
		if err != nil {
			return err
		}
		peer.AllowedIPs = append(peer.AllowedIPs, prefixes...)
	case "endpoint":
		ap, err := netip.ParseAddrPort(value)
		if err != nil {
			return fmt.Errorf("endpoint: %v", err)
		}
		peer.Endpoint = ap
	case "persistentkeepalive":
		if value == "off" {
			peer.PersistentKeepalive = 0
			return nil
		}
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("persistent keepalive: %v", err)
		}
		peer.PersistentKeepalive = int(n)
	default:
		return fmt.Errorf("unknown peer key %q", key)
	}
	return nil
}

func parsePrefixList(value string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range splitList(value) {
		r, err := ParseRange(s)
		if err != nil {
			return nil, err
		}
		p, err := r.Prefix()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func splitList(value string) []string {
	var out []string
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinPrefixes(prefixes []netip.Prefix) string {
	parts := make([]string, len(prefixes))
	for i, p := range prefixes {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}
