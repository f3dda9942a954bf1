//go:build linux

package elevate

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// relaunch tries pkexec, then replaces the process with sudo.
func relaunch(exe string, args []string) error {
	argv := append([]string{exe}, args...)

	if path, err := exec.LookPath("pkexec"); err == nil {
		cmd := exec.Command(path, argv...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err == nil {
			os.Exit(0)
		}
	}

	sudoPath, err := exec.LookPath("sudo")
	if err != nil {
		return fmt.Errorf("neither pkexec nor sudo found; please run as root")
	}
	return unix.Exec(sudoPath, append([]string{"sudo"}, argv...), os.Environ())
}
