package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/repository"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMaterial(id, name, unit string, embedding []float64) material.Material {
	now := time.Now().UTC().Truncate(time.Second)
	return material.Restore(id, name, "", "", unit, "", now, now, embedding)
}

func TestSQLiteVectorStoreCRUD(t *testing.T) {
	db := testdb.New(t)
	store := persistence.NewSQLiteVectorStore(db)
	ctx := context.Background()

	m := seedMaterial("m1", "Кирпич красный", "шт", []float64{1, 0, 0})
	require.NoError(t, store.Upsert(ctx, m))

	got, err := store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Кирпич красный", got.Name())
	assert.Equal(t, []float64{1, 0, 0}, got.Embedding())

	_, err = store.Get(ctx, "missing")
	assert.True(t, fault.IsKind(err, fault.NotFound))

	updated := m.WithName("Кирпич облицовочный")
	require.NoError(t, store.Upsert(ctx, updated))
	got, err = store.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Кирпич облицовочный", got.Name())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.Delete(ctx, "m1"))
	_, err = store.Get(ctx, "m1")
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestSQLiteVectorStoreGetBatchPreservesOrder(t *testing.T) {
	db := testdb.New(t)
	store := persistence.NewSQLiteVectorStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []material.Material{
		seedMaterial("a", "A", "шт", nil),
		seedMaterial("b", "B", "шт", nil),
		seedMaterial("c", "C", "шт", nil),
	}))

	got, err := store.GetBatch(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID())
	assert.Equal(t, "a", got[1].ID())
}

func TestSQLiteVectorStoreSearchNearest(t *testing.T) {
	db := testdb.New(t)
	store := persistence.NewSQLiteVectorStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []material.Material{
		seedMaterial("close", "Цемент М500", "кг", []float64{1, 0, 0}),
		seedMaterial("far", "Доска обрезная", "м3", []float64{0, 1, 0}),
		seedMaterial("noemb", "Без эмбеддинга", "шт", nil),
	}))

	scored, err := store.SearchNearest(ctx, []float64{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, scored, 2, "rows without embeddings are skipped")
	assert.Equal(t, "close", scored[0].Material().ID())
	assert.InDelta(t, 1.0, scored[0].Score(), 1e-9)
	assert.InDelta(t, 0.5, scored[1].Score(), 1e-9)
}

func TestSQLiteVectorStoreSearchNearestFilters(t *testing.T) {
	db := testdb.New(t)
	store := persistence.NewSQLiteVectorStore(db)
	ctx := context.Background()

	require.NoError(t, store.UpsertBatch(ctx, []material.Material{
		seedMaterial("kg", "Цемент", "кг", []float64{1, 0}),
		seedMaterial("sht", "Кирпич", "шт", []float64{1, 0}),
	}))

	scored, err := store.SearchNearest(ctx, []float64{1, 0}, 10,
		repository.WithCondition("unit", "кг"))
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "kg", scored[0].Material().ID())
}
