// Package config handles tunnel daemon configuration loading, saving, and validation.
package config

import (
	"path/filepath"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

// StoreBackend selects the profile store implementation.
type StoreBackend string

const (
	StoreYAML   StoreBackend = "yaml"
	StoreSQLite StoreBackend = "sqlite"
)

// Config represents the main configuration structure.
type Config struct {
	Version    int       `yaml:"version"`
	OwnerID    string    `yaml:"owner_id"`
	TunnelName string    `yaml:"tunnel_name"`
	Identity   Identity  `yaml:"identity"`
	Server     Server    `yaml:"server"`
	Store      Store     `yaml:"store"`
	Vault      Vault     `yaml:"vault"`
	Interface  Interface `yaml:"interface"`
	Monitor    Monitor   `yaml:"monitor"`
	OnDemand   OnDemand  `yaml:"on_demand"`
	API        API       `yaml:"api"`
	Log        Log       `yaml:"log"`
}

// Identity is the local side of the tunnel.
type Identity struct {
	PrivateKey string `yaml:"private_key"`
	AddressV4  string `yaml:"address_v4"`
	AddressV6  string `yaml:"address_v6,omitempty"`
}

// Server holds the default connect parameters used by "tunnelctl up".
type Server struct {
	PublicKey        string   `yaml:"public_key,omitempty"`
	Host             string   `yaml:"host,omitempty"`
	Port             int      `yaml:"port,omitempty"`
	DNS              string   `yaml:"dns,omitempty"`
	SecondaryGateway string   `yaml:"secondary_gateway,omitempty"`
	AllowedIPs       []string `yaml:"allowed_ips,omitempty"`
}

// Store configures profile persistence.
type Store struct {
	Backend StoreBackend `yaml:"backend"`
	Path    string       `yaml:"path"`
}

// Vault configures where tunnel configurations are kept. Backend is auto,
// keyring or file; Path is the encrypted file used by the file backend.
type Vault struct {
	Backend string `yaml:"backend"`
	Service string `yaml:"service"`
	Path    string `yaml:"path"`
}

// Interface configuration for the TUN adapter.
type Interface struct {
	Name   string `yaml:"name"`
	MTU    int    `yaml:"mtu"`
	Metric int    `yaml:"metric"`
}

// Monitor configures connection verification.
type Monitor struct {
	SettleDelayMS int `yaml:"settle_delay_ms"`
}

// OnDemand configures the network-change watcher.
type OnDemand struct {
	Enabled         bool `yaml:"enabled"`
	MinIntervalSec  int  `yaml:"min_interval_sec"`
	PollIntervalSec int  `yaml:"poll_interval_sec"`
}

// API configures the local control endpoint.
type API struct {
	Listen string `yaml:"listen"`
}

// Log configures the file logger.
type Log struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir,omitempty"`
}

// SettleDelay returns the verification delay.
func (m Monitor) SettleDelay() time.Duration {
	return time.Duration(m.SettleDelayMS) * time.Millisecond
}

// MinInterval returns the minimum time between two reconnects.
func (o OnDemand) MinInterval() time.Duration {
	return time.Duration(o.MinIntervalSec) * time.Second
}

// PollInterval returns the polling period of the fallback watcher.
func (o OnDemand) PollInterval() time.Duration {
	return time.Duration(o.PollIntervalSec) * time.Second
}

// DefaultConfig returns a default configuration with a fresh private key.
func DefaultConfig() *Config {
	key := ""
	if k, err := wgtypes.GeneratePrivateKey(); err == nil {
		key = k.String()
	}

	return &Config{
		Version:    1,
		OwnerID:    "vpn-tunnel.wireguard",
		TunnelName: "VPN Tunnel",
		Identity: Identity{
			PrivateKey: key,
			AddressV4:  "10.64.0.2/32",
		},
		Server: Server{
			Port: 51820,
		},
		Store: Store{
			Backend: StoreYAML,
			Path:    filepath.Join(defaultDataDir(), "profiles.yaml"),
		},
		Vault: Vault{
			Backend: "auto",
			Service: "vpn-tunnel",
			Path:    filepath.Join(defaultDataDir(), "vault"),
		},
		Interface: Interface{
			Name:   defaultInterfaceName(),
			MTU:    1420,
			Metric: 5,
		},
		Monitor: Monitor{
			SettleDelayMS: 500,
		},
		OnDemand: OnDemand{
			Enabled:         true,
			MinIntervalSec:  2,
			PollIntervalSec: 5,
		},
		API: API{
			Listen: "127.0.0.1:7777",
		},
		Log: Log{
			Level: "info",
		},
	}
}
