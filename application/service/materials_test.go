package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type materialsFixture struct {
	svc      *service.MaterialsService
	vectors  *fakeVectorStore
	texts    *fakeTextStore
	cache    cache.Cache
	embedder *fakeEmbedder
	outbox   *persistence.OutboxStore
}

func newMaterialsFixture(t *testing.T) materialsFixture {
	t.Helper()
	vectors := newFakeVectorStore()
	texts := newFakeTextStore()
	c := cache.NewMemoryCache()
	embedder := newFakeEmbedder()
	outbox := persistence.NewOutboxStore(testdb.New(t))
	svc := service.NewMaterialsService(vectors, texts, c, embedder, outbox,
		config.NewCacheConfig(), config.NewBatchConfig(), testLogger())
	return materialsFixture{svc: svc, vectors: vectors, texts: texts, cache: c,
		embedder: embedder, outbox: outbox}
}

func TestMaterialsCreateEmbedsAndDualWrites(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, material.New("mat-1", "Кирпич красный", "шт"))
	require.NoError(t, err)
	assert.True(t, created.HasEmbedding(), "embedding is computed when absent")

	stored, err := f.vectors.Get(ctx, "mat-1")
	require.NoError(t, err)
	assert.Equal(t, "Кирпич красный", stored.Name())
	assert.Equal(t, 1, f.texts.upsertCount())
}

func TestMaterialsCreatePreservesGivenEmbedding(t *testing.T) {
	f := newMaterialsFixture(t)
	vec := []float64{1, 0, 0, 0}
	before := f.embedder.callCount()

	created, err := f.svc.Create(context.Background(),
		material.New("mat-1", "Кирпич", "шт").WithEmbedding(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, created.Embedding())
	assert.Equal(t, before, f.embedder.callCount(), "no embed call for a pre-embedded material")
}

func TestMaterialsCreateValidates(t *testing.T) {
	f := newMaterialsFixture(t)
	_, err := f.svc.Create(context.Background(), material.New("", "", ""))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestMaterialsGetCachesAside(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, material.New("mat-1", "Кирпич", "шт"))
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, "mat-1")
	require.NoError(t, err)
	assert.Equal(t, "mat-1", got.ID())

	// A vector-store outage does not break cached reads.
	f.vectors.fail(true)
	got, err = f.svc.Get(ctx, "mat-1")
	require.NoError(t, err)
	assert.Equal(t, "Кирпич", got.Name())
}

func TestMaterialsGetNotFound(t *testing.T) {
	f := newMaterialsFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestMaterialsGetBatchPreservesOrderAndSkipsMissing(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.svc.Create(ctx, material.New(id, "Материал "+id, "шт"))
		require.NoError(t, err)
	}

	got, err := f.svc.GetBatch(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID())
	assert.Equal(t, "a", got[1].ID())
}

func TestMaterialsUpdateReembedsOnlyOnContentChange(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()
	created, err := f.svc.Create(ctx, material.New("mat-1", "Кирпич", "шт"))
	require.NoError(t, err)

	// SKU-only patch keeps the embedding.
	before := f.embedder.callCount()
	sku := "BRK-001"
	updated, err := f.svc.Update(ctx, "mat-1", service.Patch{SKU: &sku})
	require.NoError(t, err)
	assert.Equal(t, created.Embedding(), updated.Embedding())
	assert.Equal(t, before, f.embedder.callCount())

	// A name change regenerates it.
	name := "Кирпич облицовочный"
	updated, err = f.svc.Update(ctx, "mat-1", service.Patch{Name: &name})
	require.NoError(t, err)
	assert.NotEqual(t, created.Embedding(), updated.Embedding())
	assert.Equal(t, before+1, f.embedder.callCount())
}

func TestMaterialsUpdateMissing(t *testing.T) {
	f := newMaterialsFixture(t)
	name := "x"
	_, err := f.svc.Update(context.Background(), "missing", service.Patch{Name: &name})
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestMaterialsDeleteRemovesEverywhere(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()
	_, err := f.svc.Create(ctx, material.New("mat-1", "Кирпич", "шт"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, "mat-1"))
	_, err = f.svc.Get(ctx, "mat-1")
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestMaterialsRelationalOutageQueuesReconciliation(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()
	f.texts.fail(true)

	_, err := f.svc.Create(ctx, material.New("mat-1", "Кирпич", "шт"))
	require.NoError(t, err, "a failed relational write must not fail the create")

	depth, err := f.outbox.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	events, err := f.outbox.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, persistence.OutboxOpUpsert, events[0].Op)
	assert.Equal(t, "mat-1", events[0].MaterialID)

	m, err := service.DecodeMaterialPayload(events[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "Кирпич", m.Name())
}

func TestMaterialsCreateBatchPartialSuccess(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()

	outcomes := f.svc.CreateBatch(ctx, []material.Material{
		material.New("a", "Материал A", "шт"),
		material.New("", "", ""),
		material.New("c", "Материал C", "кг"),
	})
	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.NoError(t, outcomes[2].Err)

	_, err := f.vectors.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestMaterialsMutationInvalidatesDerivedKeys(t *testing.T) {
	f := newMaterialsFixture(t)
	ctx := context.Background()
	require.NoError(t, f.cache.Set(ctx, "search:abc", []byte("x"), time.Minute))
	require.NoError(t, f.cache.Set(ctx, "suggest:ки", []byte("x"), time.Minute))

	_, err := f.svc.Create(ctx, material.New("mat-1", "Кирпич", "шт"))
	require.NoError(t, err)

	_, err = f.cache.Get(ctx, "search:abc")
	assert.ErrorIs(t, err, cache.ErrNotFound)
	_, err = f.cache.Get(ctx, "suggest:ки")
	assert.ErrorIs(t, err, cache.ErrNotFound)
}
