//go:build linux

package config

import (
	"os"
	"path/filepath"
)

// GetConfigPath returns /etc/vpn-tunnel/config.yaml for root, otherwise the
// configuration path next to the executable.
func GetConfigPath() string {
	if os.Geteuid() == 0 {
		return "/etc/vpn-tunnel/config.yaml"
	}
	return filepath.Join(exeDir(), "config.yaml")
}

func defaultDataDir() string {
	if os.Geteuid() == 0 {
		return "/var/lib/vpn-tunnel"
	}
	return exeDir()
}

// defaultInterfaceName returns the default TUN interface name for Linux.
func defaultInterfaceName() string {
	return "vpntun0"
}

func exeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
