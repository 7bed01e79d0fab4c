package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// flightGrace is added on top of the caller's deadline so a collapsed
// waiter does not give up before the in-flight fill can finish.
const flightGrace = time.Second

// Flight collapses concurrent fills of the same cache key: one caller
// computes, the rest share the result.
type Flight struct {
	cache Cache
	group singleflight.Group
}

// NewFlight wraps a Cache with single-flight fills.
func NewFlight(c Cache) *Flight {
	return &Flight{cache: c}
}

// Cache returns the underlying cache.
func (f *Flight) Cache() Cache { return f.cache }

// GetOrFill returns the cached value for key, running fill on a miss and
// storing its result under ttl. Concurrent callers for the same key share
// one fill. The fill runs under the caller's deadline plus flightGrace,
// detached from the first caller's cancellation so followers still get a
// result if the leader goes away.
func (f *Flight) GetOrFill(ctx context.Context, key string, ttl time.Duration, fill func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, err := f.cache.Get(ctx, key); err == nil {
		return v, nil
	} else if err != ErrNotFound {
		return nil, err
	}

	fillCtx := context.WithoutCancel(ctx)
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		fillCtx, cancel = context.WithDeadline(fillCtx, deadline.Add(flightGrace))
	} else {
		cancel = func() {}
	}

	ch := f.group.DoChan(key, func() (any, error) {
		defer cancel()
		v, err := fill(fillCtx)
		if err != nil {
			return nil, err
		}
		_ = f.cache.Set(fillCtx, key, v, ttl)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Forget drops the in-flight entry for key so the next call re-fills.
func (f *Flight) Forget(key string) {
	f.group.Forget(key)
}
