// Package logger provides centralized logging for the tunnel controller
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"
)

// Level is the minimum severity that reaches the log.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarning
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	logFile   *os.File
	output    io.Writer = os.Stderr
	logMutex  sync.Mutex
	logPath   string
	minLevel  = LevelInfo
	listeners []func(string)
	listMutex sync.RWMutex
)

// Init opens tunnel.log inside dir. An empty dir selects the platform default.
func Init(dir string) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	if dir == "" {
		dir = getLogDir()
	}
	logPath = filepath.Join(dir, "tunnel.log")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	logFile = f
	output = io.MultiWriter(os.Stdout, f)

	// Redirect stderr to log file so panics are captured
	redirectStderr(f)

	return nil
}

// SetOutput replaces the destination for log lines. Used by the daemon in
// foreground mode and by tests.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	output = w
}

// SetLevel sets the minimum level written.
func SetLevel(l Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	minLevel = l
}

// Close closes the log file
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	output = os.Stderr
}

// AddListener adds a callback that receives log messages
func AddListener(fn func(string)) {
	listMutex.Lock()
	defer listMutex.Unlock()
	listeners = append(listeners, fn)
}

// Log writes a log message
func Log(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%s] %s", timestamp, message)

	logMutex.Lock()
	if output != nil {
		io.WriteString(output, line+"\n")
	}
	if logFile != nil {
		logFile.Sync()
	}
	logMutex.Unlock()

	// Notify listeners
	listMutex.RLock()
	for _, fn := range listeners {
		go fn(line)
	}
	listMutex.RUnlock()
}

func logAt(level Level, prefix, format string, args ...interface{}) {
	logMutex.Lock()
	skip := level < minLevel
	logMutex.Unlock()
	if skip {
		return
	}
	Log(prefix+format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logAt(LevelInfo, "INFO: ", format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logAt(LevelError, "ERROR: ", format, args...)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	logAt(LevelDebug, "DEBUG: ", format, args...)
}

// Warning logs a warning message
func Warning(format string, args ...interface{}) {
	logAt(LevelWarning, "WARN: ", format, args...)
}

// Connection logs a tunnel lifecycle event. Always written regardless of level.
func Connection(format string, args ...interface{}) {
	Log("CONN: "+format, args...)
}

// GetLogPath returns the path to the log file
func GetLogPath() string {
	return logPath
}

// Recover should be deferred at the top of every goroutine to catch panics.
// Usage: go func() { defer logger.Recover("myGoroutine"); ... }()
func Recover(name string) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		msg := fmt.Sprintf("PANIC in %s: %v\n%s", name, r, stack)
		Error("%s", msg)
		// Also write directly to file in case Log() is broken
		logMutex.Lock()
		if logFile != nil {
			logFile.WriteString(fmt.Sprintf("[%s] FATAL PANIC: %s\n",
				time.Now().Format("2006-01-02 15:04:05"), msg))
			logFile.Sync()
		}
		logMutex.Unlock()
	}
}

// SafeGo launches a goroutine with panic recovery.
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// ReadLogs reads the log file contents
func ReadLogs() (string, error) {
	if logPath == "" {
		logPath = filepath.Join(getLogDir(), "tunnel.log")
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
