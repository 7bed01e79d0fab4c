package persistence_test

import (
	"context"
	"testing"

	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxAppendPendingResolve(t *testing.T) {
	store := persistence.NewOutboxStore(testdb.New(t))
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, persistence.OutboxOpUpsert, "m1", []byte(`{"id":"m1"}`)))
	require.NoError(t, store.Append(ctx, persistence.OutboxOpDelete, "m2", nil))

	events, err := store.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, persistence.OutboxOpUpsert, events[0].Op, "oldest first")
	assert.Equal(t, "m1", events[0].MaterialID)
	assert.JSONEq(t, `{"id":"m1"}`, string(events[0].Payload))

	depth, err := store.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	require.NoError(t, store.Resolve(ctx, events[0].ID))

	events, err = store.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "m2", events[0].MaterialID)
}

func TestOutboxPendingHonorsLimit(t *testing.T) {
	store := persistence.NewOutboxStore(testdb.New(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, persistence.OutboxOpUpsert, "m", nil))
	}
	events, err := store.Pending(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
