//go:build linux || darwin

// Package elevate checks for and acquires the privileges needed to create
// TUN interfaces and edit the routing table.
package elevate

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrNotPrivileged is returned by Require when the process is not root.
var ErrNotPrivileged = errors.New("root privileges required")

// IsAdmin reports whether the effective user is root.
func IsAdmin() bool {
	return unix.Geteuid() == 0
}

// Require returns ErrNotPrivileged, naming the action, unless the process is root.
func Require(action string) error {
	if IsAdmin() {
		return nil
	}
	return fmt.Errorf("%s: %w", action, ErrNotPrivileged)
}

// Relaunch re-executes the current binary with root privileges and the given
// arguments. On success it does not return.
func Relaunch(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	return relaunch(exe, args)
}

// quoted wraps a string in single quotes for shell usage.
func quoted(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// commandLine joins exe and args into a single shell-safe command.
func commandLine(exe string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoted(exe))
	for _, a := range args {
		parts = append(parts, quoted(a))
	}
	return strings.Join(parts, " ")
}
