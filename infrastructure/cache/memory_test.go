package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryGetSetExpiry(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryDeletePattern(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("suggest:%d", i), []byte("x"), 0))
	}
	require.NoError(t, c.Set(ctx, "mat:1", []byte("x"), 0))

	n, err := c.DeletePattern(ctx, "suggest:*")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = c.Get(ctx, "mat:1")
	assert.NoError(t, err)
}

func TestMemoryCompareAndSwap(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	ok, err := c.CompareAndSwap(ctx, "k", nil, []byte("a"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CompareAndSwap(ctx, "k", []byte("wrong"), []byte("b"), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySlidingWindow(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := c.Allow(ctx, "rl", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, retryAfter, err := c.Allow(ctx, "rl", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("abc"), 0))
	v, _ := c.Get(ctx, "k")
	v[0] = 'z'
	v2, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), v2)
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		s       string
		want    bool
	}{
		{"search:*", "search:abc123", true},
		{"search:*", "suggest:abc", false},
		{"mat:?", "mat:1", true},
		{"mat:?", "mat:12", false},
		{"*", "anything", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.s); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.s, got, tt.want)
		}
	}
}

func TestFlightCollapsesConcurrentFills(t *testing.T) {
	c := newMemoryCache(t)
	f := NewFlight(c)
	ctx := context.Background()

	var fills atomic.Int64
	fill := func(context.Context) ([]byte, error) {
		fills.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []byte("result"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := f.GetOrFill(ctx, "search:key", time.Minute, fill)
			assert.NoError(t, err)
			assert.Equal(t, []byte("result"), v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fills.Load(), "concurrent misses share one fill")

	// now cached: no further fills
	_, err := f.GetOrFill(ctx, "search:key", time.Minute, fill)
	require.NoError(t, err)
	assert.Equal(t, int64(1), fills.Load())
}

func TestFlightPropagatesFillErrors(t *testing.T) {
	c := newMemoryCache(t)
	f := NewFlight(c)

	boom := errors.New("backend down")
	_, err := f.GetOrFill(context.Background(), "k", time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
}
