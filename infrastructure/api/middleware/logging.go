package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/severstroy/matcat/internal/log"
)

// CorrelationHeader carries the caller-supplied correlation id.
const CorrelationHeader = "X-Correlation-ID"

var maskedHeaders = []string{"Authorization", "X-Api-Key", "Cookie"}

// Correlation assigns correlation and request ids, propagates them
// through the context and emits exactly one end line per request.
// Request bodies are logged at debug level only when enabled and only
// when the body cache captured them.
func Correlation(logger *log.Logger, logBodies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			requestID := uuid.NewString()

			ctx := log.WithCorrelationID(r.Context(), correlationID)
			ctx = log.WithRequestID(ctx, requestID)
			r = r.WithContext(ctx)

			w.Header().Set(CorrelationHeader, correlationID)

			if logBodies {
				if body, ok := BufferedBody(ctx); ok && len(body) > 0 {
					logger.DebugContext(ctx, "request body",
						"method", r.Method,
						"path", r.URL.Path,
						"headers", maskHeaders(r.Header),
						"body", string(body),
					)
				}
			}

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.InfoContext(ctx, "request completed",
					"correlation_id", correlationID,
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds(),
					"client_id", ClientID(r),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		out[name] = values[0]
	}
	for _, name := range maskedHeaders {
		if _, ok := out[name]; ok {
			out[name] = "***"
		}
	}
	return out
}
