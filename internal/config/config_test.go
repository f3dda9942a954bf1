package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Store.Path = filepath.Join(t.TempDir(), "profiles.yaml")
	return cfg
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := validConfig(t)
	require.NoError(t, cfg.Validate())

	_, err := cfg.Identity.Key()
	assert.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.SettleDelay())
	assert.Equal(t, 2*time.Second, cfg.OnDemand.MinInterval())
	assert.Equal(t, 5*time.Second, cfg.OnDemand.PollInterval())
}

func TestValidate(t *testing.T) {
	peer, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero version", func(c *Config) { c.Version = 0 }, true},
		{"no owner", func(c *Config) { c.OwnerID = "" }, true},
		{"bad private key", func(c *Config) { c.Identity.PrivateKey = "nope" }, true},
		{"v6 in v4 slot", func(c *Config) { c.Identity.AddressV4 = "fd00::2/128" }, true},
		{"optional v6", func(c *Config) { c.Identity.AddressV6 = "fd00::2" }, false},
		{"full server", func(c *Config) {
			c.Server = Server{
				PublicKey:  peer.PublicKey().String(),
				Host:       "203.0.113.7",
				Port:       51820,
				DNS:        "10.64.0.1",
				AllowedIPs: []string{"10.0.0.0/8"},
			}
		}, false},
		{"server hostname", func(c *Config) {
			c.Server = Server{PublicKey: peer.PublicKey().String(), Host: "vpn.example.com", Port: 51820}
		}, true},
		{"server bad port", func(c *Config) {
			c.Server = Server{PublicKey: peer.PublicKey().String(), Host: "203.0.113.7", Port: 0}
		}, true},
		{"server bad range", func(c *Config) {
			c.Server = Server{PublicKey: peer.PublicKey().String(), Host: "203.0.113.7", Port: 1, AllowedIPs: []string{"x"}}
		}, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "bolt" }, true},
		{"sqlite backend", func(c *Config) { c.Store.Backend = StoreSQLite }, false},
		{"file vault", func(c *Config) { c.Vault.Backend = "file" }, false},
		{"file vault without path", func(c *Config) { c.Vault = Vault{Backend: "file"} }, true},
		{"unknown vault", func(c *Config) { c.Vault.Backend = "pass" }, true},
		{"tiny mtu", func(c *Config) { c.Interface.MTU = 100 }, true},
		{"negative settle", func(c *Config) { c.Monitor.SettleDelayMS = -1 }, true},
		{"bad listen", func(c *Config) { c.API.Listen = "7777" }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerRangesDefaultToEverything(t *testing.T) {
	ranges, err := (&Server{}).Ranges()
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.Equal(t, uint8(0), ranges[0].PrefixLength)
	assert.Equal(t, uint8(0), ranges[1].PrefixLength)
}

func TestManagerCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	m := NewManager(path)
	assert.Nil(t, m.Current())
	cfg, err := m.Load()
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	again, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.Identity.PrivateKey, again.Identity.PrivateKey)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")
}

func TestManagerKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	key, err := wgtypes.GeneratePrivateKey()
	require.NoError(t, err)

	doc := "version: 1\nowner_id: test.owner\nidentity:\n  private_key: " + key.String() +
		"\n  address_v4: 10.9.0.2/32\nstore:\n  backend: sqlite\n  path: " + filepath.Join(t.TempDir(), "p.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0600))

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "test.owner", cfg.OwnerID)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, 1420, cfg.Interface.MTU)
	assert.Equal(t, "127.0.0.1:7777", cfg.API.Listen)
}

func TestManagerRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 0\n"), 0600))
	_, err := NewManager(path).Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("version: [\n"), 0600))
	_, err = NewManager(path).Load()
	assert.Error(t, err)
}

func TestManagerUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m := NewManager(path)

	_, err := m.Update(func(c *Config) { c.Interface.MTU = 1380 })
	assert.Error(t, err, "update before load")

	_, err = m.Load()
	require.NoError(t, err)

	_, err = m.Update(func(c *Config) { c.Interface.MTU = 10 })
	assert.Error(t, err)
	assert.Equal(t, 1420, m.Current().Interface.MTU)

	updated, err := m.Update(func(c *Config) {
		c.Interface.MTU = 1380
		c.Server.AllowedIPs = []string{"10.0.0.0/8"}
	})
	require.NoError(t, err)
	assert.Equal(t, 1380, updated.Interface.MTU)

	// Snapshots are copies.
	updated.Server.AllowedIPs[0] = "192.168.0.0/16"
	assert.Equal(t, []string{"10.0.0.0/8"}, m.Current().Server.AllowedIPs)

	reloaded, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 1380, reloaded.Interface.MTU)
	assert.Equal(t, []string{"10.0.0.0/8"}, reloaded.Server.AllowedIPs)
}
