// Package dns points the system resolver at the tunnel's DNS servers while
// the tunnel is up.
package dns

import (
	"errors"
	"net/netip"
	"sync"
)

var errUnsupported = errors.New("DNS configuration is not supported on this platform")

// Manager applies and reverts tunnel DNS settings. The zero value is not
// usable; call NewManager.
type Manager struct {
	mu            sync.Mutex
	interfaceName string
	servers       []netip.Addr
	originalDNS   []string
}

// NewManager creates a new DNS manager.
func NewManager() *Manager {
	return &Manager{}
}

// Configure routes name resolution through servers on interfaceName. Calling
// it again with the same servers is a no-op.
func (m *Manager) Configure(interfaceName string, servers []netip.Addr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(servers) == 0 {
		return nil
	}
	if interfaceName == m.interfaceName && sameServers(servers, m.servers) {
		return nil
	}

	if err := m.apply(interfaceName, servers); err != nil {
		return err
	}
	m.interfaceName = interfaceName
	m.servers = append([]netip.Addr(nil), servers...)
	return nil
}

// Reset reverts whatever Configure applied.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.servers) == 0 {
		return nil
	}
	err := m.revert()
	m.interfaceName = ""
	m.servers = nil
	m.originalDNS = nil
	return err
}

// Servers returns the applied servers.
func (m *Manager) Servers() []netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]netip.Addr(nil), m.servers...)
}

func sameServers(a, b []netip.Addr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func serverStrings(servers []netip.Addr) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		out = append(out, s.String())
	}
	return out
}
