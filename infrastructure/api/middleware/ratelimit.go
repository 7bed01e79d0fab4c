package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
)

// Endpoint classes for per-class limits.
const (
	ClassSearch     = "search"
	ClassMaterials  = "materials"
	ClassEnrichment = "enrichment"
	ClassPrices     = "prices"
	ClassDefault    = "default"
)

type classLimit struct {
	perMinute int
	perHour   int
	burst     int
}

// limitTable derives per-class limits from the configured base rates.
// Enrichment and price ingestion are heavyweight and get a fraction of
// the base budget.
func limitTable(cfg config.RateLimitConfig) map[string]classLimit {
	base := classLimit{
		perMinute: cfg.PerMinute(),
		perHour:   cfg.PerHour(),
		burst:     cfg.Burst(),
	}
	return map[string]classLimit{
		ClassSearch:     base,
		ClassMaterials:  base,
		ClassEnrichment: scale(base, 2),
		ClassPrices:     scale(base, 4),
		ClassDefault:    base,
	}
}

func scale(l classLimit, divisor int) classLimit {
	return classLimit{
		perMinute: atLeastOne(l.perMinute / divisor),
		perHour:   atLeastOne(l.perHour / divisor),
		burst:     atLeastOne(l.burst / divisor),
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// EndpointClass buckets a request path for rate limiting.
func EndpointClass(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/search"):
		return ClassSearch
	case strings.HasPrefix(path, "/api/v1/materials/process-enhanced"):
		return ClassEnrichment
	case strings.HasPrefix(path, "/api/v1/materials"):
		return ClassMaterials
	case strings.HasPrefix(path, "/api/v1/prices"):
		return ClassPrices
	default:
		return ClassDefault
	}
}

// ClientID identifies the caller: API key when presented, source IP
// otherwise.
func ClientID(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit enforces sliding windows per (client, endpoint class). The
// window state lives in the cache so limits hold across instances; a
// cache outage fails open.
func RateLimit(c cache.Cache, cfg config.RateLimitConfig, logger *log.Logger) func(http.Handler) http.Handler {
	table := limitTable(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := EndpointClass(r.URL.Path)
			limits, ok := table[class]
			if !ok {
				limits = table[ClassDefault]
			}
			client := ClientID(r)
			prefix := "rl:" + class + ":" + client

			windows := []struct {
				key    string
				limit  int
				window time.Duration
			}{
				{prefix + ":burst", limits.burst, time.Second},
				{prefix + ":minute", limits.perMinute, time.Minute},
				{prefix + ":hour", limits.perHour, time.Hour},
			}

			for _, win := range windows {
				allowed, retryAfter, err := c.Allow(r.Context(), win.key, win.limit, win.window)
				if err != nil {
					logger.WarnContext(r.Context(), "rate limit check failed, allowing request",
						"key", win.key, "error", err)
					continue
				}
				if !allowed {
					rateLimitRejections.WithLabelValues(class).Inc()
					WriteError(w, r, fault.NewRateLimited(retryAfter), logger)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
