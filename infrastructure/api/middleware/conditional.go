package middleware

import (
	"net/http"
	"strings"
)

// Conditional composes the given stages and skips all of them for
// exempt path prefixes. Health and metrics probes run hot paths and
// must not pay for buffering, guarding or rate limiting.
func Conditional(exemptPrefixes []string, stages ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := next
		for i := len(stages) - 1; i >= 0; i-- {
			wrapped = stages[i](wrapped)
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range exemptPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}
