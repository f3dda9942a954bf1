//go:build darwin

package logger

import (
	"os"
	"path/filepath"
)

// getLogDir returns the log directory.
// Uses ~/Library/Application Support/VPN Tunnel/ so the daemon can write logs
// when started by launchd from a read-only location.
func getLogDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, "Library", "Application Support", "VPN Tunnel")
	}

	// Fallback: next to executable
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}
