package config

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/user/vpn-tunnel/internal/tunnelcfg"
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version < 1 {
		return fmt.Errorf("invalid config version")
	}
	if c.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}

	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("identity config: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault config: %w", err)
	}
	if err := c.Interface.Validate(); err != nil {
		return fmt.Errorf("interface config: %w", err)
	}
	if c.Monitor.SettleDelayMS < 0 {
		return fmt.Errorf("monitor config: settle_delay_ms cannot be negative")
	}
	if c.OnDemand.MinIntervalSec < 0 || c.OnDemand.PollIntervalSec < 0 {
		return fmt.Errorf("on_demand config: intervals cannot be negative")
	}
	if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
		return fmt.Errorf("api config: invalid listen address %q: %w", c.API.Listen, err)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log config: unknown level %q", c.Log.Level)
	}
	return nil
}

// Validate validates the local identity.
func (i *Identity) Validate() error {
	if i.PrivateKey == "" {
		return fmt.Errorf("private_key is required")
	}
	if _, err := wgtypes.ParseKey(i.PrivateKey); err != nil {
		return fmt.Errorf("invalid private_key: %w", err)
	}
	if i.AddressV4 == "" {
		return fmt.Errorf("address_v4 is required")
	}
	if err := checkAddress(i.AddressV4, false); err != nil {
		return fmt.Errorf("invalid address_v4: %w", err)
	}
	if i.AddressV6 != "" {
		if err := checkAddress(i.AddressV6, true); err != nil {
			return fmt.Errorf("invalid address_v6: %w", err)
		}
	}
	return nil
}

// Key returns the parsed private key.
func (i *Identity) Key() (wgtypes.Key, error) {
	return wgtypes.ParseKey(i.PrivateKey)
}

func checkAddress(s string, wantV6 bool) error {
	var addr netip.Addr
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return err
		}
		addr = p.Addr()
	} else {
		a, err := netip.ParseAddr(s)
		if err != nil {
			return err
		}
		addr = a
	}
	if addr.Is6() != wantV6 {
		return fmt.Errorf("wrong address family: %s", s)
	}
	return nil
}

// Validate validates the default server. An empty host means no default.
func (s *Server) Validate() error {
	if s.Host == "" {
		return nil
	}
	if _, err := netip.ParseAddr(s.Host); err != nil {
		return fmt.Errorf("host must be an IP address: %w", err)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if _, err := wgtypes.ParseKey(s.PublicKey); err != nil {
		return fmt.Errorf("invalid public_key: %w", err)
	}
	if s.DNS != "" {
		if _, err := netip.ParseAddr(s.DNS); err != nil {
			return fmt.Errorf("invalid dns: %w", err)
		}
	}
	if _, err := s.Ranges(); err != nil {
		return err
	}
	return nil
}

// Ranges parses AllowedIPs. An empty list routes everything.
func (s *Server) Ranges() ([]tunnelcfg.AddressRange, error) {
	ips := s.AllowedIPs
	if len(ips) == 0 {
		ips = []string{"0.0.0.0/0", "::/0"}
	}
	ranges := make([]tunnelcfg.AddressRange, 0, len(ips))
	for _, ip := range ips {
		r, err := tunnelcfg.ParseRange(ip)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR: %s", ip)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// Validate validates the profile store configuration.
func (s *Store) Validate() error {
	switch s.Backend {
	case StoreYAML, StoreSQLite:
	default:
		return fmt.Errorf("unknown backend: %s", s.Backend)
	}
	if s.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// Validate validates the vault configuration.
func (v *Vault) Validate() error {
	switch v.Backend {
	case "keyring":
	case "auto", "file":
		if v.Path == "" {
			return fmt.Errorf("path is required for the %s backend", v.Backend)
		}
	default:
		return fmt.Errorf("unknown backend: %s", v.Backend)
	}
	return nil
}

// Validate validates interface configuration.
func (i *Interface) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if i.MTU < 576 || i.MTU > 65535 {
		return fmt.Errorf("mtu must be between 576 and 65535")
	}
	if i.Metric < 1 || i.Metric > 9999 {
		return fmt.Errorf("metric must be between 1 and 9999")
	}
	return nil
}
