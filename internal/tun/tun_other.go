//go:build !linux && !darwin

package tun

import (
	"errors"
	"net/netip"
)

const defaultInterfaceName = "vpntun0"

var errUnsupported = errors.New("interface configuration is not supported on this platform")

func normalizeInterfaceName(name string) string {
	return name
}

func (a *Adapter) assignAddress(netip.Prefix) error { return errUnsupported }
func (a *Adapter) addRoute(netip.Prefix) error      { return errUnsupported }
func (a *Adapter) deleteRoute(netip.Prefix) error   { return errUnsupported }
func (a *Adapter) pinHost(netip.Addr) error         { return errUnsupported }
func (a *Adapter) unpinHost(netip.Addr) error       { return errUnsupported }

// Up is not supported on this platform.
func (a *Adapter) Up() error { return errUnsupported }

// Down is not supported on this platform.
func (a *Adapter) Down() error { return nil }
