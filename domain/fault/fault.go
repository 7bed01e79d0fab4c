// Package fault defines the error taxonomy shared by every layer.
//
// Adapters wrap low-level errors with fmt.Errorf and %w; only boundaries
// (repository, search engine, request envelope) convert them into a Fault.
// The envelope's error boundary is the single place that turns a Fault into
// a user-visible response.
package fault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure for boundary translation.
type Kind int

// Kind values.
const (
	Internal Kind = iota
	Validation
	InvalidCursor
	NotFound
	RateLimited
	BackpressureRejected
	EmbeddingUnavailable
	EmbeddingShape
	BackendsUnavailable
	UnitUnknown
	ColorUnknown
	Conflict
	Timeout
)

// String returns the canonical name of the kind.
func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation_error"
	case InvalidCursor:
		return "invalid_cursor"
	case NotFound:
		return "not_found"
	case RateLimited:
		return "rate_limited"
	case BackpressureRejected:
		return "backpressure_rejected"
	case EmbeddingUnavailable:
		return "embedding_unavailable"
	case EmbeddingShape:
		return "embedding_shape"
	case BackendsUnavailable:
		return "backends_unavailable"
	case UnitUnknown:
		return "unit_unknown"
	case ColorUnknown:
		return "color_unknown"
	case Conflict:
		return "conflict"
	case Timeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Fault is a typed error carrying a kind, a message, optional per-field
// details, and the wrapped cause.
type Fault struct {
	kind       Kind
	message    string
	fields     map[string]string
	retryAfter time.Duration
	cause      error
}

// New creates a Fault of the given kind.
func New(kind Kind, message string) *Fault {
	return &Fault{kind: kind, message: message}
}

// Wrap creates a Fault of the given kind wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Fault {
	return &Fault{kind: kind, message: message, cause: cause}
}

// NewValidation creates a validation Fault with per-field messages.
func NewValidation(message string, fields map[string]string) *Fault {
	cp := make(map[string]string, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return &Fault{kind: Validation, message: message, fields: cp}
}

// NewNotFound creates a not-found Fault for a resource id.
func NewNotFound(resource, id string) *Fault {
	return &Fault{kind: NotFound, message: fmt.Sprintf("%s %q not found", resource, id)}
}

// NewRateLimited creates a rate-limited Fault with the retry-after hint.
func NewRateLimited(retryAfter time.Duration) *Fault {
	return &Fault{
		kind:       RateLimited,
		message:    "rate limit exceeded",
		retryAfter: retryAfter,
	}
}

// Error implements error.
func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.kind, f.message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.kind, f.message)
}

// Unwrap returns the wrapped cause.
func (f *Fault) Unwrap() error { return f.cause }

// Kind returns the fault kind.
func (f *Fault) Kind() Kind { return f.kind }

// Message returns the human-readable message without the kind prefix.
func (f *Fault) Message() string { return f.message }

// Fields returns the per-field detail map (validation faults).
func (f *Fault) Fields() map[string]string {
	cp := make(map[string]string, len(f.fields))
	for k, v := range f.fields {
		cp[k] = v
	}
	return cp
}

// RetryAfter returns the retry hint for rate-limited faults (zero otherwise).
func (f *Fault) RetryAfter() time.Duration { return f.retryAfter }

// Is reports kind equality so errors.Is works against sentinel faults.
func (f *Fault) Is(target error) bool {
	var other *Fault
	if errors.As(target, &other) {
		return f.kind == other.kind
	}
	return false
}

// KindOf extracts the Kind from an error chain. Unclassified errors are
// Internal; context deadline errors surface as Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return Internal
	}
	var f *Fault
	if errors.As(err, &f) {
		return f.kind
	}
	if isDeadline(err) {
		return Timeout
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.kind == kind
	}
	if kind == Timeout && isDeadline(err) {
		return true
	}
	return false
}

// Transient reports whether an error is worth retrying: timeouts and
// upstream availability failures, never validation or shape mismatches.
// An error that carries its own Retryable verdict, such as a provider
// error, has the final say.
func Transient(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	switch KindOf(err) {
	case Timeout, EmbeddingUnavailable, BackendsUnavailable, RateLimited:
		return true
	}
	return false
}

func isDeadline(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
