//go:build darwin

package tun

import (
	"bufio"
	"bytes"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
)

const defaultInterfaceName = "utun"

// normalizeInterfaceName maps any name to utun; the kernel picks the number.
func normalizeInterfaceName(name string) string {
	if strings.HasPrefix(name, "utun") {
		return name
	}
	return "utun"
}

func run(name string, args ...string) ([]byte, error) {
	out, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// assignAddress sets a point-to-point address; utun needs a peer address,
// for which the address itself is used.
func (a *Adapter) assignAddress(prefix netip.Prefix) error {
	addr := prefix.Addr().String()
	var err error
	if prefix.Addr().Is4() {
		_, err = run("ifconfig", a.name, "inet", addr, addr, "alias")
	} else {
		_, err = run("ifconfig", a.name, "inet6", addr, "prefixlen", fmt.Sprint(prefix.Bits()), "alias")
	}
	if err != nil {
		return fmt.Errorf("failed to set IP address %s: %w", prefix, err)
	}
	return nil
}

func family(addr netip.Addr) string {
	if addr.Is4() {
		return "-inet"
	}
	return "-inet6"
}

func (a *Adapter) addRoute(prefix netip.Prefix) error {
	_, err := run("route", "-q", "-n", "add", family(prefix.Addr()), prefix.String(), "-interface", a.name)
	return err
}

func (a *Adapter) deleteRoute(prefix netip.Prefix) error {
	_, err := run("route", "-q", "-n", "delete", family(prefix.Addr()), prefix.String(), "-interface", a.name)
	return err
}

func (a *Adapter) pinHost(addr netip.Addr) error {
	out, err := run("route", "-n", "get", family(addr), "default")
	if err != nil {
		return err
	}
	gateway := ""
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if ok && key == "gateway" {
			gateway = strings.TrimSpace(value)
			break
		}
	}
	if gateway == "" {
		return fmt.Errorf("no default gateway")
	}
	_, err = run("route", "-q", "-n", "add", family(addr), "-host", addr.String(), gateway)
	return err
}

func (a *Adapter) unpinHost(addr netip.Addr) error {
	_, err := run("route", "-q", "-n", "delete", family(addr), "-host", addr.String())
	return err
}

// Up brings the adapter up (macOS).
func (a *Adapter) Up() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return ErrNotCreated
	}

	if _, err := run("ifconfig", a.name, "up"); err != nil {
		return fmt.Errorf("failed to bring interface up: %w", err)
	}

	a.isUp = true
	return nil
}

// Down brings the adapter down (macOS).
func (a *Adapter) Down() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.device == nil {
		return nil
	}

	run("ifconfig", a.name, "down")

	a.isUp = false
	return nil
}
