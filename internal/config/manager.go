package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager owns the configuration file. Configurations it hands out are
// snapshots; changes go through Update.
type Manager struct {
	path string

	mu      sync.Mutex
	current *Config
}

// NewManager creates a manager for path, or for GetConfigPath when empty.
func NewManager(path string) *Manager {
	if path == "" {
		path = GetConfigPath()
	}
	return &Manager{path: path}
}

// Path returns the configuration file path.
func (m *Manager) Path() string {
	return m.path
}

// Load reads and validates the file. A missing file is written with the
// defaults; fields absent from an existing file keep their default values.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := readFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = DefaultConfig()
		err = writeFile(m.path, cfg)
	}
	if err != nil {
		return nil, err
	}
	m.current = cfg
	return cfg.clone(), nil
}

// Current returns a copy of the last loaded configuration, or nil before Load.
func (m *Manager) Current() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	return m.current.clone()
}

// Update applies fn to a copy of the current configuration, validates the
// result and persists it. The stored configuration is unchanged on error.
func (m *Manager) Update(fn func(*Config)) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	next := m.current.clone()
	fn(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if err := writeFile(m.path, next); err != nil {
		return nil, err
	}
	m.current = next
	return next.clone(), nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeFile replaces path atomically. The file carries the private key, so
// it is never readable by other users, not even while being written.
func writeFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) clone() *Config {
	out := *c
	out.Server.AllowedIPs = append([]string(nil), c.Server.AllowedIPs...)
	return &out
}
