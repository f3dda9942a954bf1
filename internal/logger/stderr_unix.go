//go:build linux || darwin

package logger

import (
	"os"

	"golang.org/x/sys/unix"
)

// redirectStderr redirects stderr to the log file so panics are captured.
func redirectStderr(f *os.File) {
	unix.Dup2(int(f.Fd()), int(os.Stderr.Fd()))
}
