package matcat

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/severstroy/matcat/infrastructure/api"
	v1 "github.com/severstroy/matcat/infrastructure/api/v1"
)

// healthStores selects which components /health/databases reports.
var healthStores = []string{"vector", "sql", "cache"}

// buildServer assembles the HTTP server and mounts all routes behind
// the request envelope.
func (c *Client) buildServer() *api.Server {
	server := api.NewServer(c.cfg, c.cache, c.logger)

	var enrichment *v1.EnrichmentRouter
	if c.Batch != nil {
		enrichment = v1.NewEnrichmentRouter(c.Batch, c.logger)
	}
	materials := v1.NewMaterialsRouter(c.Materials, enrichment, c.logger)
	searches := v1.NewSearchRouter(c.Search, c.analytics, c.logger)
	prices := v1.NewPricesRouter(c.Prices, c.logger)
	health := v1.NewHealthRouter(c.Health, healthStores, c.logger)

	router := server.Router()
	router.Route("/api/v1", func(r chi.Router) {
		r.Mount("/search", searches.Routes())
		r.Mount("/materials", materials.Routes())
		r.Mount("/prices", prices.Routes())
	})
	router.Mount("/health", health.Routes())
	router.Handle("/metrics", promhttp.Handler())

	return server
}

// Handler returns the complete HTTP handler, for embedding in another
// server or for tests.
func (c *Client) Handler() http.Handler {
	return c.server.Router()
}

// Addr returns the configured HTTP listen address.
func (c *Client) Addr() string {
	return c.server.Addr()
}

// StartHTTP serves the API, blocking until StopHTTP or Close.
func (c *Client) StartHTTP() error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	return c.server.Start()
}

// StopHTTP gracefully stops the HTTP listener without closing the
// client.
func (c *Client) StopHTTP(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}
