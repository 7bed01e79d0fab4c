// Package cache provides the key-value cache abstraction with Redis and
// in-memory implementations.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// DeleteBudget caps how many keys a single DeletePattern call removes.
// Residual keys age out via their TTL.
const DeleteBudget = 10000

// Cache is the key-value store used for materials, search results,
// suggestions, combined-embedding texts, rate-limit windows, and the
// job-tracking fallback.
type Cache interface {
	// Get returns the value for a key, ErrNotFound when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value under a TTL. Zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys, ignoring absent ones.
	Delete(ctx context.Context, keys ...string) error

	// GetBatch returns the present subset of keys.
	GetBatch(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetBatch stores all items under one TTL via a pipeline.
	SetBatch(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// DeletePattern removes keys matching a glob pattern (* and ?), up to
	// DeleteBudget per call, returning how many were removed.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// CompareAndSwap sets key to next iff its current value equals prev.
	// An empty prev expects the key to be absent.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)

	// Allow records one hit against a sliding window and reports whether
	// the request fits under limit. When rejected, retryAfter is the time
	// until the oldest entry leaves the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
