//go:build darwin

package elevate

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// relaunch shows the native authorization dialog through osascript and
// falls back to sudo when that is unavailable.
func relaunch(exe string, args []string) error {
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	if osascript, err := exec.LookPath("osascript"); err == nil {
		script := fmt.Sprintf(`do shell script "%s" with administrator privileges`,
			escapeAppleScript(commandLine(exe, args)))
		cmd := exec.Command(osascript, "-e", script)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err == nil {
			os.Exit(0)
		}
	}

	sudoPath, err := exec.LookPath("sudo")
	if err != nil {
		return fmt.Errorf("osascript and sudo not available; please run as root")
	}
	return unix.Exec(sudoPath, append([]string{"sudo", exe}, args...), os.Environ())
}

// escapeAppleScript escapes a string for use inside an AppleScript double-quoted string.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
