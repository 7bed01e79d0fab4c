package service_test

import (
	"context"
	"testing"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/reference"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enrichmentFixture struct {
	svc      *service.EnrichmentService
	parser   *fakeParser
	embedder *fakeEmbedder
	catalog  *fakeCatalog
}

func newEnrichmentFixture(t *testing.T, searchCfg config.SearchConfig) enrichmentFixture {
	t.Helper()
	parser := newFakeParser()
	embedder := newFakeEmbedder()
	catalog := &fakeCatalog{}

	refs := service.NewReferenceService(newMemRefStore(), embedder, testLogger())
	require.NoError(t, refs.Seed(context.Background(), "", ""))

	svc := service.NewEnrichmentService(parser, embedder, refs, catalog,
		cache.NewFlight(cache.NewMemoryCache()), searchCfg, config.NewCacheConfig(), testLogger())
	return enrichmentFixture{svc: svc, parser: parser, embedder: embedder, catalog: catalog}
}

func TestEnrichmentParseFallsBackToInputUnit(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())
	f.parser.results["Кирпич красный"] = provider.ParseResult{Coefficient: 1}

	parsed, err := f.svc.Parse(context.Background(), "Кирпич красный", "шт")
	require.NoError(t, err)
	assert.Equal(t, "шт", parsed.ParsedUnit())
	assert.False(t, parsed.HasColor())
	assert.NotEmpty(t, parsed.EmbeddingName())
	assert.Empty(t, parsed.EmbeddingColor(), "no color means no color embedding")
}

func TestEnrichmentNormalizeExactAlias(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())

	parsed := material.NewParsed("штука", 1, "red", nil, nil, nil)
	unit, color, err := f.svc.Normalize(context.Background(), parsed)
	require.NoError(t, err)
	assert.Equal(t, "шт", unit)
	assert.Equal(t, "красный", color)
}

func TestEnrichmentNormalizeEmptyColorSkipsLookup(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())

	color, err := f.svc.NormalizeColor(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Empty(t, color)
}

func TestEnrichmentNormalizeUnknownUnitFault(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())

	_, err := f.svc.NormalizeUnit(context.Background(), "furlong", nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.UnitUnknown))
}

func TestEnrichmentNormalizeUnknownColorFault(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())

	_, err := f.svc.NormalizeColor(context.Background(), "quuxified", nil)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.ColorUnknown))
}

func TestEnrichmentCombinedEmbeddingCached(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())
	ctx := context.Background()

	before := f.embedder.callCount()
	first, err := f.svc.CombinedEmbedding(ctx, "Кирпич", "шт", "красный")
	require.NoError(t, err)
	second, err := f.svc.CombinedEmbedding(ctx, "Кирпич", "шт", "красный")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before+1, f.embedder.callCount(), "second call must hit the cache")
}

func TestEnrichmentLookupSKUFiltersInRankOrder(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())

	combined := []float64{1, 0, 0, 0}
	f.catalog.items = []reference.CatalogItem{
		// Best similarity but wrong unit.
		reference.NewCatalogItem("SKU-WRONG-UNIT", "Кирпич", "м2", "красный", []float64{1, 0, 0, 0}),
		// Right unit and color, slightly lower similarity.
		reference.NewCatalogItem("SKU-OK", "Кирпич", "шт", "красный", []float64{0.95, 0.3, 0, 0}),
		// Below the cosine floor.
		reference.NewCatalogItem("SKU-FAR", "Плитка", "шт", "красный", []float64{0, 1, 0, 0}),
	}

	match, err := f.svc.LookupSKU(context.Background(), combined, "шт", "красный")
	require.NoError(t, err)
	assert.Equal(t, "SKU-OK", match.SKU)
	assert.Greater(t, match.Similarity, 0.9)
}

func TestEnrichmentLookupSKUStopsBelowFloor(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())
	f.catalog.items = []reference.CatalogItem{
		reference.NewCatalogItem("SKU-FAR", "Плитка", "шт", "", []float64{0, 1, 0, 0}),
	}

	match, err := f.svc.LookupSKU(context.Background(), []float64{1, 0, 0, 0}, "шт", "")
	require.NoError(t, err)
	assert.Empty(t, match.SKU, "no candidate above the floor is a miss, not an error")
}

func TestEnrichmentColorAsymmetry(t *testing.T) {
	combined := []float64{1, 0, 0, 0}
	colored := reference.NewCatalogItem("SKU-RED", "Кирпич", "шт", "красный", combined)
	colorless := reference.NewCatalogItem("SKU-PLAIN", "Кирпич", "шт", "", combined)

	t.Run("colorless input accepts colored candidate", func(t *testing.T) {
		f := newEnrichmentFixture(t, config.NewSearchConfig())
		f.catalog.items = []reference.CatalogItem{colored}
		match, err := f.svc.LookupSKU(context.Background(), combined, "шт", "")
		require.NoError(t, err)
		assert.Equal(t, "SKU-RED", match.SKU)
	})

	t.Run("colored input rejects mismatched candidate", func(t *testing.T) {
		f := newEnrichmentFixture(t, config.NewSearchConfig())
		f.catalog.items = []reference.CatalogItem{colorless}
		match, err := f.svc.LookupSKU(context.Background(), combined, "шт", "синий")
		require.NoError(t, err)
		assert.Empty(t, match.SKU)
	})

	t.Run("strict symmetry rejects colored candidate for colorless input", func(t *testing.T) {
		f := newEnrichmentFixture(t, config.NewSearchConfig().WithStrictColorSymmetry(true))
		f.catalog.items = []reference.CatalogItem{colored}
		match, err := f.svc.LookupSKU(context.Background(), combined, "шт", "")
		require.NoError(t, err)
		assert.Empty(t, match.SKU)
	})
}

func TestEnrichFullPipeline(t *testing.T) {
	f := newEnrichmentFixture(t, config.NewSearchConfig())
	ctx := context.Background()

	f.parser.results["Кирпич облицовочный красный"] = provider.ParseResult{
		Unit:        "штука",
		Coefficient: 1,
		Color:       "red",
	}
	combined := material.CombinedText("Кирпич облицовочный красный", "шт", "красный")
	f.embedder.set(combined, []float64{1, 0, 0, 0})
	f.catalog.items = []reference.CatalogItem{
		reference.NewCatalogItem("BRK-001", "Кирпич облицовочный", "шт", "красный", []float64{1, 0, 0, 0}),
	}

	result, err := f.svc.Enrich(ctx, "mat-1", "Кирпич облицовочный красный", "шт.")
	require.NoError(t, err)
	assert.Equal(t, "mat-1", result.MaterialID)
	assert.Equal(t, "BRK-001", result.SKU)
	assert.InDelta(t, 1.0, result.Similarity, 1e-9)
	assert.Equal(t, "шт", result.NormalizedUnit)
	assert.Equal(t, "красный", result.NormalizedColor)
	assert.InDelta(t, 1.0, result.UnitCoefficient, 1e-9)
}
