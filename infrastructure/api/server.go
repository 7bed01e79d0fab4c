// Package api hosts the HTTP server and its request envelope.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/severstroy/matcat/infrastructure/api/middleware"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
)

// ExemptPaths bypass the heavy envelope stages. Probes and scrapers
// hit them in tight loops.
var ExemptPaths = []string{"/health", "/metrics"}

// Server is the HTTP API server with the envelope pre-applied.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	logger     *log.Logger
	addr       string
}

// NewServer creates a Server with the full request envelope. Stage
// order is fixed: the error boundary wraps everything, exempt paths
// skip the rest.
func NewServer(cfg config.AppConfig, c cache.Cache, logger *log.Logger) *Server {
	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.ErrorBoundary(logger))
	router.Use(middleware.Conditional(ExemptPaths,
		middleware.BodyCache(),
		middleware.Compression(),
		middleware.Security(cfg.Security(), cfg.IsProduction()),
		middleware.RateLimit(c, cfg.RateLimit(), logger),
		middleware.Correlation(logger, !cfg.IsProduction()),
		middleware.Metrics(),
		middleware.Timeout(cfg.RequestTimeout()),
	))

	return &Server{
		router: router,
		addr:   cfg.Addr(),
		logger: logger,
	}
}

// Router returns the chi router for registering routes.
func (s *Server) Router() chi.Router { return s.router }

// Addr returns the listen address.
func (s *Server) Addr() string { return s.addr }

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
