// Package provider implements AI service clients: embedding generation and
// material parsing.
package provider

import (
	"context"
	"fmt"
)

// Embedder generates embedding vectors with a fixed dimension.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float64, error)

	// EmbedOne returns the vector for a single text.
	EmbedOne(ctx context.Context, text string) ([]float64, error)

	// Dimension returns the fixed vector dimension.
	Dimension() int
}

// ParseResult is the structured output of the material parser.
type ParseResult struct {
	Unit        string
	Coefficient float64
	Color       string
}

// MaterialParser extracts unit, coefficient, and color from a raw
// material description.
type MaterialParser interface {
	ParseMaterial(ctx context.Context, name, description string) (ParseResult, error)
}

// ProviderError wraps a provider failure with the operation, the upstream
// HTTP status, and retryability.
type ProviderError struct {
	operation  string
	statusCode int
	message    string
	retryable  bool
	cause      error
}

// NewProviderError creates a ProviderError.
func NewProviderError(operation string, statusCode int, message string, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		retryable:  retryable,
		cause:      cause,
	}
}

// Error implements error.
func (e *ProviderError) Error() string {
	if e.statusCode > 0 {
		return fmt.Sprintf("provider %s: status %d: %s", e.operation, e.statusCode, e.message)
	}
	return fmt.Sprintf("provider %s: %s", e.operation, e.message)
}

// Unwrap returns the wrapped cause.
func (e *ProviderError) Unwrap() error { return e.cause }

// Operation returns the failed operation name.
func (e *ProviderError) Operation() string { return e.operation }

// StatusCode returns the upstream HTTP status, 0 when unknown.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// Retryable reports whether retrying might succeed.
func (e *ProviderError) Retryable() bool { return e.retryable }
