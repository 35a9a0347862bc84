// Package server exposes folio's document and translation session API
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/metrics"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/store"
)

// Server is the main folio HTTP server. It owns the document store,
// the provider registry, and all live translation sessions.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	sink       *store.Sink
	registry   *providers.Registry
	recorder   *metrics.Recorder
	configMgr  *config.Manager
	logger     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session // keyed by document id
	running  bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// DatabasePath is the SQLite database location.
	DatabasePath string
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DatabasePath == "" {
		return nil, errors.New("database path is required")
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	// If config manager provided, set up providers and hot reload
	if cfg.ConfigManager != nil {
		if err := registry.Reload(cfg.ConfigManager.Get().ToRegistryConfig()); err != nil {
			cfg.Logger.Warn("provider not configured", "error", err)
		}

		cfg.ConfigManager.OnChange(func(c *config.Config) {
			if err := registry.Reload(c.ToRegistryConfig()); err != nil {
				cfg.Logger.Error("provider registry reload failed", "error", err)
				return
			}
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		store:     st,
		sink:      store.NewSink(st, cfg.Logger),
		registry:  registry,
		recorder:  metrics.NewRecorder(),
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
		sessions:  make(map[string]*session),
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server. It blocks until the context is cancelled or
// an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown signal received")
		return s.shutdown()
	})

	return g.Wait()
}

// shutdown drains sessions, flushes the write sink, and closes the store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.engine.Close()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	s.sink.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.logger.Info("server stopped")
	return nil
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
