package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

const janitorInterval = 30 * time.Second

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is the in-process fallback used when Redis is not
// configured. A janitor goroutine sweeps expired entries.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	windows map[string][]time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates a MemoryCache and starts its janitor.
func NewMemoryCache() *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]memoryEntry),
		windows: make(map[string][]time.Time),
		done:    make(chan struct{}),
	}
	go c.janitor()
	return c
}

func (c *MemoryCache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for k, e := range c.entries {
				if e.expired(now) {
					delete(c.entries, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Get returns the value for a key, ErrNotFound when absent or expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(e.value))
	copy(cp, e.value)
	return cp, nil
}

// Set stores a value under a TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	e := memoryEntry{value: cp}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Delete removes keys.
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

// GetBatch returns the present subset of keys.
func (c *MemoryCache) GetBatch(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, err := c.Get(ctx, k); err == nil {
			out[k] = v
		}
	}
	return out, nil
}

// SetBatch stores all items under one TTL.
func (c *MemoryCache) SetBatch(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	for k, v := range items {
		if err := c.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

// DeletePattern removes keys matching a glob pattern, up to DeleteBudget.
func (c *MemoryCache) DeletePattern(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deleted := 0
	for k := range c.entries {
		if deleted >= DeleteBudget {
			break
		}
		if matchGlob(pattern, k) {
			delete(c.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

// CompareAndSwap sets key to next iff its current value equals prev.
func (c *MemoryCache) CompareAndSwap(_ context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && e.expired(time.Now()) {
		ok = false
	}
	if ok {
		if !bytes.Equal(e.value, prev) {
			return false, nil
		}
	} else if len(prev) != 0 {
		return false, nil
	}

	cp := make([]byte, len(next))
	copy(cp, next)
	ne := memoryEntry{value: cp}
	if ttl > 0 {
		ne.expiresAt = time.Now().Add(ttl)
	}
	c.entries[key] = ne
	return true, nil
}

// Allow records one hit against a sliding window.
func (c *MemoryCache) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := time.Now()
	cutoff := now.Add(-window)

	c.mu.Lock()
	defer c.mu.Unlock()

	hits := c.windows[key]
	kept := hits[:0]
	for _, ts := range hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) < limit {
		c.windows[key] = append(kept, now)
		return true, 0, nil
	}
	c.windows[key] = kept
	retry := kept[0].Add(window).Sub(now)
	if retry < 0 {
		retry = 0
	}
	return false, retry, nil
}

// Ping always succeeds.
func (c *MemoryCache) Ping(context.Context) error { return nil }

// Close stops the janitor. Idempotent.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// matchGlob matches redis-style glob patterns with * and ?.
func matchGlob(pattern, s string) bool {
	p, n := []rune(pattern), []rune(s)
	var backtrackP, backtrackN = -1, 0
	i, j := 0, 0
	for j < len(n) {
		switch {
		case i < len(p) && (p[i] == '?' || p[i] == n[j]):
			i++
			j++
		case i < len(p) && p[i] == '*':
			backtrackP, backtrackN = i, j
			i++
		case backtrackP >= 0:
			backtrackN++
			i, j = backtrackP+1, backtrackN
		default:
			return false
		}
	}
	for i < len(p) && p[i] == '*' {
		i++
	}
	return i == len(p)
}

var _ Cache = (*MemoryCache)(nil)
