package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/vpn-tunnel/internal/controller"
)

// fakeTunnel runs every call inline, which preserves the queue ordering the
// server relies on.
type fakeTunnel struct {
	mu          sync.Mutex
	phase       controller.Phase
	alwaysOn    bool
	since       time.Time
	status      controller.Status
	connectErr  error
	connects    []controller.ConnectRequest
	disconnects int
}

func (f *fakeTunnel) Connect(req controller.ConnectRequest, onFailure func(error)) {
	f.mu.Lock()
	f.connects = append(f.connects, req)
	err := f.connectErr
	if err == nil {
		f.phase = controller.PhaseConnecting
	}
	f.mu.Unlock()
	if err != nil {
		onFailure(err)
	}
}

func (f *fakeTunnel) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.alwaysOn = false
	f.phase = controller.PhaseDisconnecting
}

func (f *fakeTunnel) CheckStatus(done func(controller.Status)) {
	f.mu.Lock()
	st := f.status
	f.mu.Unlock()
	done(st)
}

func (f *fakeTunnel) SetAlwaysOn(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alwaysOn = enabled
}

func (f *fakeTunnel) GetAlwaysOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alwaysOn
}

func (f *fakeTunnel) HasAlwaysOnRules() bool { return f.GetAlwaysOn() }

func (f *fakeTunnel) Phase() controller.Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

func (f *fakeTunnel) ConnectedSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.since
}

func (f *fakeTunnel) calls() ([]controller.ConnectRequest, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]controller.ConnectRequest(nil), f.connects...), f.disconnects
}

func newTestClient(t *testing.T, tunnel Tunnel) *Client {
	t.Helper()
	srv := httptest.NewServer(NewServer(tunnel).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestHealth(t *testing.T) {
	c := newTestClient(t, &fakeTunnel{})
	assert.NoError(t, c.Health(context.Background()))
}

func TestStatus(t *testing.T) {
	since := time.Unix(1700000000, 0).UTC()
	tunnel := &fakeTunnel{
		phase:    controller.PhaseConnected,
		alwaysOn: true,
		since:    since,
		status: controller.Status{
			Gateway:      "203.0.113.7",
			LocalAddress: "10.64.0.2",
			Raw:          "last_handshake_time_sec=1700000042\nrx_bytes=10\ntx_bytes=20\n",
		},
	}
	c := newTestClient(t, tunnel)

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "connected", st.Phase)
	assert.True(t, st.AlwaysOn)
	assert.Equal(t, "203.0.113.7", st.Gateway)
	assert.Equal(t, "10.64.0.2", st.LocalAddress)
	require.NotNil(t, st.ConnectedSince)
	assert.True(t, since.Equal(*st.ConnectedSince))
	require.NotNil(t, st.LastHandshake)
	assert.Equal(t, int64(1700000042), st.LastHandshake.Unix())
	assert.Equal(t, uint64(10), st.RxBytes)
	assert.Equal(t, uint64(20), st.TxBytes)
}

func TestStatusEmpty(t *testing.T) {
	c := newTestClient(t, &fakeTunnel{phase: controller.PhaseDisconnected})

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "disconnected", st.Phase)
	assert.Nil(t, st.ConnectedSince)
	assert.Nil(t, st.LastHandshake)
	assert.Empty(t, st.Gateway)
}

func TestConnect(t *testing.T) {
	tunnel := &fakeTunnel{}
	c := newTestClient(t, tunnel)

	req := ConnectRequest{
		DNS:             "10.64.0.1",
		ServerPublicKey: "key",
		ServerHost:      "203.0.113.7",
		ServerPort:      51820,
		Reason:          controller.ReasonSwitching,
		EnableAlwaysOn:  true,
	}
	require.NoError(t, c.Connect(context.Background(), req))
	connects, _ := tunnel.calls()
	require.Len(t, connects, 1)
	assert.Equal(t, req.ServerHost, connects[0].ServerHost)
	assert.Equal(t, controller.ReasonSwitching, connects[0].Reason)
	assert.True(t, connects[0].EnableAlwaysOn)
}

func TestConnectFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not initialized", controller.ErrNotInitialized, http.StatusServiceUnavailable},
		{"closed", controller.ErrClosed, http.StatusServiceUnavailable},
		{"other", errors.New("invalid key"), http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeTunnel{connectErr: tt.err})
			err := c.Connect(context.Background(), ConnectRequest{})

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.err.Error(), apiErr.Message)
		})
	}
}

func TestConnectBadBody(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeTunnel{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/connect", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisconnect(t *testing.T) {
	tunnel := &fakeTunnel{alwaysOn: true}
	c := newTestClient(t, tunnel)

	require.NoError(t, c.Disconnect(context.Background()))
	_, disconnects := tunnel.calls()
	assert.Equal(t, 1, disconnects)
	assert.False(t, tunnel.GetAlwaysOn())
}

func TestAlwaysOn(t *testing.T) {
	c := newTestClient(t, &fakeTunnel{})
	ctx := context.Background()

	got, err := c.AlwaysOn(ctx)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	got, err = c.SetAlwaysOn(ctx, true)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.HasRules)

	got, err = c.AlwaysOn(ctx)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeTunnel{}).Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/status", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	m := NewRateLimitMiddleware(0.001, 2)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/connect", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestNewClientAddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:7777", NewClient("127.0.0.1:7777").baseURL)
	assert.Equal(t, "https://host", NewClient("https://host/").baseURL)
}
