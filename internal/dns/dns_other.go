//go:build !linux && !darwin

package dns

import "net/netip"

func (m *Manager) apply(string, []netip.Addr) error { return errUnsupported }

func (m *Manager) revert() error { return nil }
