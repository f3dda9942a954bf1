//go:build linux

package dns

import (
	"fmt"
	"net/netip"
	"os/exec"
)

// apply uses systemd-resolved: the servers become the link's resolvers and
// the "~." routing domain sends every query through the tunnel.
func (m *Manager) apply(interfaceName string, servers []netip.Addr) error {
	args := append([]string{"dns", interfaceName}, serverStrings(servers)...)
	if out, err := exec.Command("resolvectl", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to set DNS: %w: %s", err, string(out))
	}
	if out, err := exec.Command("resolvectl", "domain", interfaceName, "~.").CombinedOutput(); err != nil {
		return fmt.Errorf("failed to set DNS routing domain: %w: %s", err, string(out))
	}
	exec.Command("resolvectl", "flush-caches").Run()
	return nil
}

func (m *Manager) revert() error {
	if out, err := exec.Command("resolvectl", "revert", m.interfaceName).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to revert DNS: %w: %s", err, string(out))
	}
	return nil
}
