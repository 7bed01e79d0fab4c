package middleware

import (
	"context"
	"net/http"
	"time"
)

// Timeout bounds every request context. Handlers and adapters inherit
// the deadline; the fault translation turns the resulting context
// errors into 504 responses.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
