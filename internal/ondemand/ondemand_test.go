package ondemand

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vpn-tunnel/internal/controller"
)

type fakeTunnel struct {
	mu       sync.Mutex
	alwaysOn bool
	phase    controller.Phase
	resumes  int
}

func (f *fakeTunnel) GetAlwaysOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alwaysOn
}

func (f *fakeTunnel) Phase() controller.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *fakeTunnel) Resume(onFailure func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
}

func (f *fakeTunnel) Resumes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes
}

func TestHandleNetworkChange(t *testing.T) {
	tests := []struct {
		name     string
		alwaysOn bool
		phase    controller.Phase
		want     bool
	}{
		{"always-on off", false, controller.PhaseDisconnected, false},
		{"connected", true, controller.PhaseConnected, false},
		{"connecting", true, controller.PhaseConnecting, false},
		{"uninitialized", true, controller.PhaseUninitialized, false},
		{"disconnected", true, controller.PhaseDisconnected, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tunnel := &fakeTunnel{alwaysOn: tt.alwaysOn, phase: tt.phase}
			w := New(tunnel, Options{Source: func(context.Context) (<-chan struct{}, error) { return nil, nil }})
			assert.Equal(t, tt.want, w.HandleNetworkChange())
			if tt.want {
				assert.Equal(t, 1, tunnel.Resumes())
			} else {
				assert.Zero(t, tunnel.Resumes())
			}
		})
	}
}

func TestHandleNetworkChange_Throttled(t *testing.T) {
	tunnel := &fakeTunnel{alwaysOn: true, phase: controller.PhaseDisconnected}
	w := New(tunnel, Options{MinInterval: time.Hour, Source: func(context.Context) (<-chan struct{}, error) { return nil, nil }})

	assert.True(t, w.HandleNetworkChange())
	assert.False(t, w.HandleNetworkChange())
	assert.Equal(t, 1, tunnel.Resumes())
}

func TestRun(t *testing.T) {
	tunnel := &fakeTunnel{alwaysOn: true, phase: controller.PhaseDisconnected}
	events := make(chan struct{})
	w := New(tunnel, Options{
		MinInterval: time.Millisecond,
		Source:      func(context.Context) (<-chan struct{}, error) { return events, nil },
	})

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	events <- struct{}{}
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, tunnel.Resumes())
}

func TestRun_SourceError(t *testing.T) {
	w := New(&fakeTunnel{}, Options{
		Source: func(context.Context) (<-chan struct{}, error) { return nil, errors.New("no netlink") },
	})
	assert.ErrorContains(t, w.Run(context.Background()), "no netlink")
}

func TestPollSource_ReportsChanges(t *testing.T) {
	var mu sync.Mutex
	value := "eth0=10.0.0.2/24"
	fingerprint := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return value, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := pollSource(5*time.Millisecond, fingerprint)(ctx)
	require.NoError(t, err)

	select {
	case <-events:
		t.Fatal("change reported without a change")
	case <-time.After(30 * time.Millisecond):
	}

	mu.Lock()
	value = "wlan0=192.168.1.4/24"
	mu.Unlock()

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("change not reported")
	}

	cancel()
	for range events {
	}
}

func TestInterfaceFingerprint(t *testing.T) {
	a, err := interfaceFingerprint()
	require.NoError(t, err)
	b, err := interfaceFingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
