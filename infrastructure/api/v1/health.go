package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/infrastructure/api/middleware"
	"github.com/severstroy/matcat/internal/log"
)

// HealthRouter exposes the liveness and readiness probes.
type HealthRouter struct {
	health *service.HealthService
	// Components reported by /health/databases.
	storeNames map[string]bool
	logger     *log.Logger
}

// NewHealthRouter creates a HealthRouter. storeNames selects which
// components the databases probe reports.
func NewHealthRouter(health *service.HealthService, storeNames []string, logger *log.Logger) *HealthRouter {
	names := make(map[string]bool, len(storeNames))
	for _, n := range storeNames {
		names[n] = true
	}
	return &HealthRouter{health: health, storeNames: names, logger: logger}
}

// Routes returns the chi router for health endpoints.
func (rt *HealthRouter) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/", rt.Live)
	router.Get("/detailed", rt.Detailed)
	router.Get("/databases", rt.Databases)

	return router
}

// Live handles GET /health. Cheap: no backend probes.
func (rt *HealthRouter) Live(w http.ResponseWriter, req *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, rt.health.Live())
}

// Detailed handles GET /health/detailed with per-component state.
func (rt *HealthRouter) Detailed(w http.ResponseWriter, req *http.Request) {
	h := rt.health.Detailed(req.Context())
	middleware.WriteJSON(w, statusCode(h.Status), h)
}

// Databases handles GET /health/databases, reporting store probes
// only.
func (rt *HealthRouter) Databases(w http.ResponseWriter, req *http.Request) {
	h := rt.health.Detailed(req.Context())

	filtered := service.Health{Status: service.StatusOK}
	for _, c := range h.Components {
		if !rt.storeNames[c.Name] {
			continue
		}
		filtered.Components = append(filtered.Components, c)
		if c.Status == service.StatusDown {
			filtered.Status = service.StatusDown
		}
	}
	middleware.WriteJSON(w, statusCode(filtered.Status), filtered)
}

func statusCode(status string) int {
	if status == service.StatusDown {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
