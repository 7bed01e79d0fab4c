package service_test

import (
	"context"
	"testing"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerReplaysUpserts(t *testing.T) {
	outbox := persistence.NewOutboxStore(testdb.New(t))
	texts := newFakeTextStore()
	ctx := context.Background()

	// Queue two writes as the dual-write path would during an outage.
	vectors := newFakeVectorStore()
	texts.fail(true)
	svc := service.NewMaterialsService(vectors, texts, cache.NewMemoryCache(),
		newFakeEmbedder(), outbox, config.NewCacheConfig(), config.NewBatchConfig(), testLogger())
	_, err := svc.Create(ctx, material.New("a", "Кирпич", "шт"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, material.New("b", "Цемент", "кг"))
	require.NoError(t, err)

	texts.fail(false)
	rec := service.NewReconciler(outbox, texts, testLogger())
	require.NoError(t, rec.DrainOnce(ctx))

	depth, err := outbox.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	got, err := texts.SearchText(ctx, "кирпич", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Material().ID())
}

func TestReconcilerReplaysDeletes(t *testing.T) {
	outbox := persistence.NewOutboxStore(testdb.New(t))
	texts := newFakeTextStore()
	ctx := context.Background()

	require.NoError(t, texts.Upsert(ctx, material.New("a", "Кирпич", "шт")))
	require.NoError(t, outbox.Append(ctx, persistence.OutboxOpDelete, "a", nil))

	rec := service.NewReconciler(outbox, texts, testLogger())
	require.NoError(t, rec.DrainOnce(ctx))

	got, err := texts.SearchText(ctx, "кирпич", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReconcilerSkipsWhileBackendDown(t *testing.T) {
	outbox := persistence.NewOutboxStore(testdb.New(t))
	texts := newFakeTextStore()
	texts.fail(true)
	ctx := context.Background()

	m := material.New("a", "Кирпич", "шт")
	payload, err := service.EncodeMaterialPayload(m)
	require.NoError(t, err)
	require.NoError(t, outbox.Append(ctx, persistence.OutboxOpUpsert, "a", payload))

	rec := service.NewReconciler(outbox, texts, testLogger())
	require.NoError(t, rec.DrainOnce(ctx), "an unreachable backend is not an error")

	depth, err := outbox.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth, "events stay queued until the backend answers")
}

func TestReconcilerNilTextStoreIsNoop(t *testing.T) {
	outbox := persistence.NewOutboxStore(testdb.New(t))
	rec := service.NewReconciler(outbox, nil, testLogger())
	assert.NoError(t, rec.DrainOnce(context.Background()))
}
