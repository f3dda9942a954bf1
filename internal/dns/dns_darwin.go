//go:build darwin

package dns

import (
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
)

// apply sets the servers on the primary network service and remembers the
// previous ones for revert.
func (m *Manager) apply(_ string, servers []netip.Addr) error {
	service := primaryNetworkService()
	if service == "" {
		return fmt.Errorf("no primary network service found")
	}

	if m.originalDNS == nil {
		m.originalDNS = currentDNS(service)
	}

	args := append([]string{"-setdnsservers", service}, serverStrings(servers)...)
	if out, err := exec.Command("networksetup", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to set DNS: %w: %s", err, string(out))
	}
	flushCache()
	return nil
}

func (m *Manager) revert() error {
	service := primaryNetworkService()
	if service == "" {
		return nil
	}

	args := []string{"-setdnsservers", service, "empty"}
	if len(m.originalDNS) > 0 {
		args = append([]string{"-setdnsservers", service}, m.originalDNS...)
	}
	if out, err := exec.Command("networksetup", args...).CombinedOutput(); err != nil {
		return fmt.Errorf("failed to restore DNS: %w: %s", err, string(out))
	}
	flushCache()
	return nil
}

func currentDNS(service string) []string {
	out, err := exec.Command("networksetup", "-getdnsservers", service).Output()
	if err != nil {
		return []string{}
	}
	return parseDNSServers(string(out))
}

// parseDNSServers reads "networksetup -getdnsservers" output. The result is
// non-nil so that an empty original configuration is still remembered.
func parseDNSServers(output string) []string {
	servers := []string{}
	output = strings.TrimSpace(output)
	if strings.Contains(output, "There aren't any DNS Servers") {
		return servers
	}
	for _, line := range strings.Split(output, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			servers = append(servers, line)
		}
	}
	return servers
}

func primaryNetworkService() string {
	out, err := exec.Command("networksetup", "-listallnetworkservices").Output()
	if err != nil {
		return ""
	}

	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "An asterisk") {
			continue
		}
		// Disabled services start with "*".
		if !strings.HasPrefix(line, "*") {
			return line
		}
	}
	return ""
}

func flushCache() {
	exec.Command("dscacheutil", "-flushcache").Run()
	exec.Command("killall", "-HUP", "mDNSResponder").Run()
}
