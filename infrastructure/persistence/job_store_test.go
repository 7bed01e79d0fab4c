package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/job"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLJobStore(t *testing.T) job.Store {
	return persistence.NewSQLJobStore(testdb.New(t))
}

func newCacheJobStore(t *testing.T) job.Store {
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	return persistence.NewCacheJobStore(c)
}

// Both implementations must satisfy the same transition contract.
func jobStores(t *testing.T) map[string]func(*testing.T) job.Store {
	t.Helper()
	return map[string]func(*testing.T) job.Store{
		"sql":   newSQLJobStore,
		"cache": newCacheJobStore,
	}
}

func seedJob(t *testing.T, store job.Store, requestID string, names ...string) {
	t.Helper()
	items := make([]job.Item, len(names))
	for i, n := range names {
		items[i] = job.NewItem(requestID+"-"+n, n, "шт")
	}
	require.NoError(t, store.Create(context.Background(), job.New(requestID, len(items)), items))
}

func TestJobStoreCreateAndGet(t *testing.T) {
	for name, factory := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			seedJob(t, store, "req1", "a", "b", "c")

			j, err := store.Get(context.Background(), "req1")
			require.NoError(t, err)
			assert.Equal(t, 3, j.Total())
			assert.Equal(t, 3, j.Pending())
			assert.True(t, j.CheckInvariant())

			items, err := store.Items(context.Background(), "req1")
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, "a", items[0].Name(), "accept order preserved")
			assert.Equal(t, "c", items[2].Name())

			_, err = store.Get(context.Background(), "nope")
			assert.True(t, fault.IsKind(err, fault.NotFound))
		})
	}
}

func TestJobStoreTransitionLifecycle(t *testing.T) {
	for name, factory := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			seedJob(t, store, "req1", "a", "b")

			require.NoError(t, store.Transition(ctx, "req1", "req1-a",
				job.StatusPending, job.StatusProcessing,
				job.Update{Attempts: 1, LastAttemptAt: time.Now().UTC()}))
			require.NoError(t, store.Transition(ctx, "req1", "req1-a",
				job.StatusProcessing, job.StatusCompleted,
				job.Update{SKU: "SKU-1", Similarity: 0.92}))

			j, err := store.Get(ctx, "req1")
			require.NoError(t, err)
			assert.Equal(t, 1, j.Pending())
			assert.Equal(t, 0, j.Processing())
			assert.Equal(t, 1, j.Completed())
			assert.True(t, j.CheckInvariant())

			items, err := store.Items(ctx, "req1")
			require.NoError(t, err)
			assert.Equal(t, job.StatusCompleted, items[0].Status())
			assert.Equal(t, "SKU-1", items[0].SKU())
			assert.InDelta(t, 0.92, items[0].Similarity(), 1e-9)
		})
	}
}

func TestJobStoreTransitionConflicts(t *testing.T) {
	for name, factory := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			seedJob(t, store, "req1", "a")

			// wrong expected status
			err := store.Transition(ctx, "req1", "req1-a",
				job.StatusProcessing, job.StatusCompleted, job.Update{})
			assert.True(t, fault.IsKind(err, fault.Conflict))

			// illegal transition
			err = store.Transition(ctx, "req1", "req1-a",
				job.StatusPending, job.StatusFailed, job.Update{})
			assert.True(t, fault.IsKind(err, fault.Conflict))

			// double apply: second transition from pending must lose
			require.NoError(t, store.Transition(ctx, "req1", "req1-a",
				job.StatusPending, job.StatusProcessing, job.Update{Attempts: 1}))
			err = store.Transition(ctx, "req1", "req1-a",
				job.StatusPending, job.StatusProcessing, job.Update{Attempts: 1})
			assert.True(t, fault.IsKind(err, fault.Conflict))
		})
	}
}

func TestJobStoreRetryReturnsItemToPending(t *testing.T) {
	for name, factory := range jobStores(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()
			seedJob(t, store, "req1", "a")

			require.NoError(t, store.Transition(ctx, "req1", "req1-a",
				job.StatusPending, job.StatusProcessing, job.Update{Attempts: 1}))
			require.NoError(t, store.Transition(ctx, "req1", "req1-a",
				job.StatusProcessing, job.StatusPending,
				job.Update{Attempts: 1, ErrMessage: "embedding timeout"}))

			j, err := store.Get(ctx, "req1")
			require.NoError(t, err)
			assert.Equal(t, 1, j.Pending())
			assert.True(t, j.CheckInvariant())
		})
	}
}

func TestJobStoreEphemeralFlag(t *testing.T) {
	assert.False(t, newSQLJobStore(t).Ephemeral())
	assert.True(t, newCacheJobStore(t).Ephemeral())

	store := newCacheJobStore(t)
	seedJob(t, store, "req1", "a")
	j, err := store.Get(context.Background(), "req1")
	require.NoError(t, err)
	assert.True(t, j.Ephemeral())
}

func TestCacheJobStoreCreateDuplicate(t *testing.T) {
	store := newCacheJobStore(t)
	seedJob(t, store, "req1", "a")

	err := store.Create(context.Background(), job.New("req1", 1),
		[]job.Item{job.NewItem("x", "x", "шт")})
	assert.True(t, fault.IsKind(err, fault.Conflict))
}
