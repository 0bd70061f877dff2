package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/pkg/api/handlers"
)

// stopGrace bounds the shutdown Start performs itself when its context ends.
const stopGrace = 5 * time.Second

// Server serves the REST API. See NewRouter for the routes.
//
// Lifecycle:
//   - NewServer builds the handler; nothing listens yet
//   - Start binds the port and serves until ctx is cancelled
//   - Stop waits for in-flight requests, so block uploads accepted before
//     shutdown reach their cache before the runtime drains it
type Server struct {
	server       *http.Server
	config       APIConfig
	port         atomic.Int64
	shutdownOnce sync.Once
}

// NewServer creates an API server for rt. Defaults are applied to config
// so servers built directly in tests behave like configured ones.
func NewServer(config APIConfig, rt handlers.Runtime) *Server {
	config.ApplyDefaults()

	s := &Server{
		config: config,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewRouter(rt, config),
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
		},
	}
	s.port.Store(int64(config.Port))
	return s
}

// Start binds the configured port and serves until ctx is cancelled or the
// server fails. A port already in use is reported immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("API server failed to listen on %s: %w", s.server.Addr, err)
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port.Store(int64(addr.Port))
	}

	logger.Info("API server listening", "port", s.Port())
	logger.Debug("API endpoints available",
		"health", fmt.Sprintf("http://localhost:%d/health", s.Port()),
		"status", fmt.Sprintf("http://localhost:%d/api/v1/status", s.Port()),
		"blocks", fmt.Sprintf("http://localhost:%d/api/v1/caches/{cache}/blocks/{key}", s.Port()),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Later calls are no-ops.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", logger.Err(err))
			return
		}
		logger.Info("API server stopped")
	})
	return shutdownErr
}

// Port returns the bound port once Start has listened, else the
// configured one.
func (s *Server) Port() int {
	return int(s.port.Load())
}
