// Package middleware implements the HTTP request envelope: error
// formatting, body buffering, compression, request guarding, rate
// limiting and request logging.
package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/internal/log"
)

// ErrorDetail is one user-visible error.
type ErrorDetail struct {
	Kind          string            `json:"kind"`
	Message       string            `json:"message"`
	Fields        map[string]string `json:"fields,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// ErrorResponse is the envelope for every error body the API returns.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorBoundary recovers panics and is the outermost stage of the
// envelope. Handlers and inner stages report errors through WriteError;
// nothing else formats user-visible errors.
func ErrorBoundary(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.ErrorContext(r.Context(), "panic recovered",
						"panic", fmt.Sprint(rec),
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					WriteError(w, r, fault.New(fault.Internal, "internal error"), logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// StatusFor maps a fault kind to its HTTP status.
func StatusFor(kind fault.Kind) int {
	switch kind {
	case fault.Validation, fault.InvalidCursor:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.RateLimited, fault.BackpressureRejected:
		return http.StatusTooManyRequests
	case fault.Conflict:
		return http.StatusConflict
	case fault.UnitUnknown, fault.ColorUnknown:
		return http.StatusUnprocessableEntity
	case fault.EmbeddingUnavailable, fault.BackendsUnavailable:
		return http.StatusServiceUnavailable
	case fault.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError translates an error into its HTTP response. Rate limited
// responses carry Retry-After; internal errors echo the correlation id
// so the client can quote it back.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *log.Logger) {
	kind := fault.KindOf(err)
	status := StatusFor(kind)

	detail := ErrorDetail{
		Kind:    kind.String(),
		Message: err.Error(),
	}

	var f *fault.Fault
	if errors.As(err, &f) {
		detail.Message = f.Message()
		detail.Fields = f.Fields()
		if kind == fault.RateLimited && f.RetryAfter() > 0 {
			seconds := int64(f.RetryAfter().Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		}
	}

	if status >= http.StatusInternalServerError {
		detail.CorrelationID = log.CorrelationID(r.Context())
		logger.ErrorContext(r.Context(), "request failed",
			"status", status, "path", r.URL.Path, "error", err.Error())
	}

	WriteJSON(w, status, ErrorResponse{Error: detail})
}

// WriteJSON writes a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
