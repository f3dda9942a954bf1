// Package api exposes the tunnel controller on a local HTTP endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/user/vpn-tunnel/internal/controller"
	"github.com/user/vpn-tunnel/internal/logger"
	"github.com/user/vpn-tunnel/internal/session"
)

// Tunnel is the controller surface served by the API.
type Tunnel interface {
	Connect(req controller.ConnectRequest, onFailure func(error))
	Disconnect()
	CheckStatus(done func(controller.Status))
	SetAlwaysOn(enabled bool)
	GetAlwaysOn() bool
	HasAlwaysOnRules() bool
	Phase() controller.Phase
	ConnectedSince() time.Time
}

// flushTimeout bounds how long a handler waits for the controller queue.
const flushTimeout = 10 * time.Second

// Server is the local control API.
type Server struct {
	router     *mux.Router
	tunnel     Tunnel
	httpServer *http.Server
}

// NewServer creates a server for tunnel.
func NewServer(tunnel Tunnel) *Server {
	s := &Server{
		router: mux.NewRouter(),
		tunnel: tunnel,
	}
	s.router.Use(LoggingMiddleware)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/v1/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	s.router.HandleFunc("/v1/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/v1/always-on", s.handleGetAlwaysOn).Methods("GET")

	// State-changing routes share one limiter.
	limit := NewRateLimitMiddleware(5, 10).Middleware
	s.router.Handle("/v1/connect", limit(http.HandlerFunc(s.handleConnect))).Methods("POST")
	s.router.Handle("/v1/disconnect", limit(http.HandlerFunc(s.handleDisconnect))).Methods("POST")
	s.router.Handle("/v1/always-on", limit(http.HandlerFunc(s.handleSetAlwaysOn))).Methods("PUT")
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on listen until ctx is done.
func (s *Server) Start(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("API listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// flush waits until every job queued before it has run on the controller.
func (s *Server) flush(ctx context.Context) (controller.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()

	ch := make(chan controller.Status, 1)
	s.tunnel.CheckStatus(func(st controller.Status) { ch <- st })
	select {
	case st := <-ch:
		return st, nil
	case <-ctx.Done():
		return controller.Status{}, ctx.Err()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.flush(r.Context())
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	resp := StatusResponse{
		Phase:            s.tunnel.Phase().String(),
		AlwaysOn:         s.tunnel.GetAlwaysOn(),
		HasAlwaysOnRules: s.tunnel.HasAlwaysOnRules(),
		Gateway:          st.Gateway,
		LocalAddress:     st.LocalAddress,
	}
	if since := s.tunnel.ConnectedSince(); !since.IsZero() {
		resp.ConnectedSince = &since
	}
	if st.Raw != "" {
		report := session.ParseReport(st.Raw)
		if hs := report.LastHandshake(); !hs.IsZero() {
			resp.LastHandshake = &hs
		}
		resp.RxBytes = report.RxBytes
		resp.TxBytes = report.TxBytes
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	failed := make(chan error, 1)
	s.tunnel.Connect(req, func(err error) { failed <- err })
	if _, err := s.flush(r.Context()); err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	select {
	case err := <-failed:
		writeError(w, connectErrorStatus(err), err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"phase": s.tunnel.Phase().String()})
	}
}

func connectErrorStatus(err error) int {
	switch {
	case errors.Is(err, controller.ErrNotInitialized), errors.Is(err, controller.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.tunnel.Disconnect()
	if _, err := s.flush(r.Context()); err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"phase": s.tunnel.Phase().String()})
}

func (s *Server) handleGetAlwaysOn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AlwaysOn{
		Enabled:  s.tunnel.GetAlwaysOn(),
		HasRules: s.tunnel.HasAlwaysOnRules(),
	})
}

func (s *Server) handleSetAlwaysOn(w http.ResponseWriter, r *http.Request) {
	var body AlwaysOn
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.tunnel.SetAlwaysOn(body.Enabled)
	if _, err := s.flush(r.Context()); err != nil {
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	s.handleGetAlwaysOn(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warning("API: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
