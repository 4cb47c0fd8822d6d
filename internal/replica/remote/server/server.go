// Package server exposes a remote.Store over HTTP for httpstore clients.
//
// Routes:
//
//	GET  /v1/replicas/{scope}          snapshot payload
//	PUT  /v1/replicas/{scope}          replace snapshot, returns {"version"}
//	GET  /v1/replicas/{scope}/version  {"version"}
//	GET  /healthz
//	GET  /metrics                      Prometheus exposition
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hivelog/hivesync/internal/replica/remote"
)

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front of a remote replica store.
type Server struct {
	config   Config
	store    remote.Store
	http     *http.Server
	registry *prometheus.Registry
	metrics  *Metrics
	addr     string
}

// NewServer creates a Server serving store.
func NewServer(cfg Config, store remote.Store) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}

	reg := prometheus.NewRegistry()
	s := &Server{
		config:   cfg,
		store:    store,
		registry: reg,
		metrics:  NewMetrics(reg),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()
	return nil
}

// Addr returns the address the server listens on once started.
func (s *Server) Addr() string {
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler builds the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /v1/replicas/{scope}", s.instrument("pull", s.requireAuth(s.handlePull)))
	mux.HandleFunc("PUT /v1/replicas/{scope}", s.instrument("push", s.requireAuth(s.handlePush)))
	mux.HandleFunc("GET /v1/replicas/{scope}/version", s.instrument("peek", s.requireAuth(s.handleVersion)))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, loggingMiddleware, maxBytesMiddleware(s.config.MaxBodyBytes))
}

// handleHealth reports ok, pinging the backend when it supports it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			logFor(r.Context()).Error("health ping", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "store unreachable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
