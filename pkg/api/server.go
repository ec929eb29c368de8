// Package api provides the HTTP surface of the service: the liveness root,
// the readiness probe, and optionally the Prometheus metrics endpoint.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/pventura/tidepool/internal/logger"
	"github.com/pventura/tidepool/pkg/config"
)

// Server wraps the HTTP listener.
//
// The server is created in a stopped state; the bootstrapper starts it once
// the shared application state exists and stops it during the drain phase.
// Stop is safe to call multiple times.
type Server struct {
	server       *http.Server
	mu           sync.Mutex
	addr         string
	shutdownOnce sync.Once
}

// NewServer creates the API HTTP server for the given listener config and
// handler. It does not start listening.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// ListenAndServe opens the listener and blocks serving requests until Stop
// is called or the listener fails. Returns http.ErrServerClosed after a
// graceful Stop.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	return s.server.Serve(ln)
}

// Addr returns the bound listener address, or "" before the listener has
// been opened. With a configured port of 0 this is the only way to learn
// the actual port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the server down: the listener stops accepting new
// connections while in-flight requests are allowed to complete until ctx
// expires. Only the first call has effect.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}
