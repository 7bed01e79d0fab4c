package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matcat_http_request_duration_seconds",
		Help:    "HTTP request duration by method, endpoint class and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "class", "status"})

	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matcat_ratelimit_rejections_total",
		Help: "Requests rejected by the rate limiter, by endpoint class.",
	}, []string{"class"})
)

// Metrics records per-request duration histograms. Paths collapse to
// endpoint classes to keep cardinality bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			requestDuration.WithLabelValues(
				r.Method,
				EndpointClass(r.URL.Path),
				strconv.Itoa(ww.Status()),
			).Observe(time.Since(start).Seconds())
		})
	}
}
