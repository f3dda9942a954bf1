package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarning, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarning, ParseLevel("warn"))
	assert.Equal(t, LevelWarning, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarning)
	defer func() {
		SetLevel(LevelInfo)
		SetOutput(os.Stderr)
	}()

	Debug("debug message")
	Info("info message")
	assert.Zero(t, buf.Len(), "debug/info should be filtered at warn level")

	Warning("warn message %d", 1)
	assert.Contains(t, buf.String(), "WARN: warn message 1")

	buf.Reset()
	Error("error message")
	assert.Contains(t, buf.String(), "ERROR: error message")

	buf.Reset()
	Connection("tunnel up")
	assert.Contains(t, buf.String(), "CONN: tunnel up")
}

func TestListenersReceiveLines(t *testing.T) {
	SetOutput(&bytes.Buffer{})
	defer SetOutput(os.Stderr)

	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)
	AddListener(func(line string) {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
		if strings.Contains(line, "listener check") {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	Info("listener check")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener was not called")
	}
}

func TestInitWritesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))
	defer Close()

	Info("written to file")

	assert.Equal(t, filepath.Join(dir, "tunnel.log"), GetLogPath())
	data, err := ReadLogs()
	require.NoError(t, err)
	assert.Contains(t, data, "written to file")
}

func TestRecoverCatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	func() {
		defer Recover("worker")
		panic("boom")
	}()

	assert.Contains(t, buf.String(), "PANIC in worker: boom")
}
