// Package server assembles the HTTP proxy server: routes, middleware
// chain, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"sentinel-hq/aegis/pkg/config"
	"sentinel-hq/aegis/pkg/proxy/handlers"
	"sentinel-hq/aegis/pkg/proxy/middleware"
	"sentinel-hq/aegis/pkg/telemetry/metrics"
)

// Server is the guarded proxy's HTTP server.
type Server struct {
	config     *config.ProxyConfig
	handler    *handlers.Handler
	metrics    *metrics.Metrics
	httpServer *http.Server

	shutdownChan chan struct{}
	shutdownOnce sync.Once

	mu        sync.Mutex
	isRunning bool
}

// New creates the server. metrics may be nil when the metrics endpoint is
// disabled.
func New(cfg *config.ProxyConfig, h *handlers.Handler, m *metrics.Metrics) *Server {
	return &Server{
		config:       cfg,
		handler:      h,
		metrics:      m,
		shutdownChan: make(chan struct{}),
	}
}

// setupRoutes builds the route table and wraps it in the middleware chain:
// recovery outermost, then logging, request ID, and the request deadline.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Guarded inference routes, one per dialect endpoint.
	mux.HandleFunc("POST /v1/chat/completions", s.handler.ChatCompletions)
	mux.HandleFunc("POST /api/chat", s.handler.NativeChat)
	mux.HandleFunc("POST /api/generate", s.handler.NativeGenerate)

	// Unguarded passthrough.
	mux.HandleFunc("GET /v1/models", s.handler.Models)
	mux.HandleFunc("GET /api/tags", s.handler.Tags)
	mux.HandleFunc("GET /api/version", s.handler.Version)

	// Introspection.
	mux.HandleFunc("GET /health", s.handler.Health)
	mux.HandleFunc("GET /ready", s.handler.Ready)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	// Admin.
	mux.HandleFunc("GET /admin/queues", s.handler.Queues)
	mux.HandleFunc("GET /admin/cache", s.handler.CacheStats)
	mux.HandleFunc("POST /admin/cache/clear", s.handler.CacheClear)
	mux.HandleFunc("POST /admin/limits", s.handler.UpdateLimits)
	mux.HandleFunc("POST /admin/reset", s.handler.ResetStats)
	mux.HandleFunc("GET /admin/audit", s.handler.AuditEvents)

	var handler http.Handler = mux
	handler = middleware.Deadline(s.config.RequestDeadline)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Logging(handler)
	handler = middleware.Recovery(handler)
	return handler
}

// Start starts the server and blocks until shutdown, triggered by signal,
// context cancellation, or Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.setupRoutes(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting proxy server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.shutdown()
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.shutdown()
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.shutdown()
	}
}

// Shutdown asks a running server to stop. Safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}

// shutdown drains in-flight requests within the configured timeout.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	slog.Info("shutting down proxy server", "timeout", s.config.ShutdownTimeout)
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("proxy server stopped")
	return nil
}
