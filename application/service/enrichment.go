package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/reference"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
	"golang.org/x/sync/errgroup"
)

// SKUMatch is the outcome of the SKU lookup stage: empty SKU means no
// catalog item survived recall and filtering.
type SKUMatch struct {
	SKU        string
	Similarity float64
}

// EnrichmentResult carries the per-item output of the full pipeline.
type EnrichmentResult struct {
	MaterialID      string
	SKU             string
	Similarity      float64
	NormalizedUnit  string
	UnitCoefficient float64
	NormalizedColor string
}

// EnrichmentService runs the four-stage pipeline: AI parse, reference
// normalization, combined embedding, SKU lookup. Stages are pure with
// respect to their inputs and the reference snapshots; the only side
// effects are cache fills.
type EnrichmentService struct {
	parser   provider.MaterialParser
	embedder provider.Embedder
	refs     *ReferenceService
	catalog  reference.CatalogStore
	flight   *cache.Flight
	search   config.SearchConfig
	cacheCfg config.CacheConfig
	logger   *log.Logger
}

// NewEnrichmentService creates an EnrichmentService.
func NewEnrichmentService(
	parser provider.MaterialParser,
	embedder provider.Embedder,
	refs *ReferenceService,
	catalog reference.CatalogStore,
	flight *cache.Flight,
	searchCfg config.SearchConfig,
	cacheCfg config.CacheConfig,
	logger *log.Logger,
) *EnrichmentService {
	return &EnrichmentService{
		parser:   parser,
		embedder: embedder,
		refs:     refs,
		catalog:  catalog,
		flight:   flight,
		search:   searchCfg,
		cacheCfg: cacheCfg,
		logger:   logger,
	}
}

// Enrich runs all stages for one material.
func (s *EnrichmentService) Enrich(ctx context.Context, id, name, unit string) (EnrichmentResult, error) {
	parsed, err := s.Parse(ctx, name, unit)
	if err != nil {
		return EnrichmentResult{}, err
	}

	normalizedUnit, normalizedColor, err := s.Normalize(ctx, parsed)
	if err != nil {
		return EnrichmentResult{}, err
	}

	combined, err := s.CombinedEmbedding(ctx, name, normalizedUnit, normalizedColor)
	if err != nil {
		return EnrichmentResult{}, err
	}

	match, err := s.LookupSKU(ctx, combined, normalizedUnit, normalizedColor)
	if err != nil {
		return EnrichmentResult{}, err
	}

	return EnrichmentResult{
		MaterialID:      id,
		SKU:             match.SKU,
		Similarity:      match.Similarity,
		NormalizedUnit:  normalizedUnit,
		UnitCoefficient: parsed.UnitCoefficient(),
		NormalizedColor: normalizedColor,
	}, nil
}

// Parse is stage A: one chat-completion parse plus the field embeddings.
// The color embedding is only generated when the parser actually found a
// color.
func (s *EnrichmentService) Parse(ctx context.Context, name, unit string) (material.Parsed, error) {
	result, err := s.parser.ParseMaterial(ctx, name, unit)
	if err != nil {
		return material.Parsed{}, err
	}

	parsedUnit := result.Unit
	if parsedUnit == "" {
		parsedUnit = unit
	}

	texts := []string{name, parsedUnit}
	if result.Color != "" {
		texts = append(texts, result.Color)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return material.Parsed{}, err
	}

	var colorVec []float64
	if result.Color != "" {
		colorVec = vectors[2]
	}
	return material.NewParsed(parsedUnit, result.Coefficient, result.Color,
		vectors[0], vectors[1], colorVec), nil
}

// Normalize is stage B: unit and color resolution run in parallel.
func (s *EnrichmentService) Normalize(ctx context.Context, parsed material.Parsed) (unit, color string, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var uerr error
		unit, uerr = s.NormalizeUnit(gctx, parsed.ParsedUnit(), parsed.EmbeddingUnit())
		return uerr
	})
	g.Go(func() error {
		var cerr error
		color, cerr = s.NormalizeColor(gctx, parsed.Color(), parsed.EmbeddingColor())
		return cerr
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return unit, color, nil
}

// NormalizeUnit resolves a raw unit through exact alias, vector nearest,
// then fuzzy tiers.
func (s *EnrichmentService) NormalizeUnit(ctx context.Context, raw string, embedding []float64) (string, error) {
	canonical, ok := s.normalize(reference.Units, raw, embedding,
		s.search.UnitVectorMin(), s.search.UnitFuzzyMin())
	if !ok {
		return "", fault.New(fault.UnitUnknown, fmt.Sprintf("unit %q has no canonical form", raw))
	}
	return canonical, nil
}

// NormalizeColor resolves a raw color. A missing color is not an error:
// null in, null out, no store call.
func (s *EnrichmentService) NormalizeColor(ctx context.Context, raw string, embedding []float64) (string, error) {
	if raw == "" {
		return "", nil
	}
	canonical, ok := s.normalize(reference.Colors, raw, embedding,
		s.search.ColorVectorMin(), s.search.ColorFuzzyMin())
	if !ok {
		return "", fault.New(fault.ColorUnknown, fmt.Sprintf("color %q has no canonical form", raw))
	}
	return canonical, nil
}

func (s *EnrichmentService) normalize(collection reference.Collection, raw string, embedding []float64, vectorMin, fuzzyMin float64) (string, bool) {
	if entry, ok := s.refs.LookupExact(collection, raw); ok {
		return entry.Canonical(), true
	}
	if len(embedding) > 0 {
		if matches := s.refs.LookupNearest(collection, embedding, 1); len(matches) > 0 && matches[0].Score() >= vectorMin {
			return matches[0].Entry().Canonical(), true
		}
	}
	if matches := s.refs.LookupFuzzy(collection, raw, 1); len(matches) > 0 && matches[0].Score() >= fuzzyMin {
		return matches[0].Entry().Canonical(), true
	}
	return "", false
}

// CombinedEmbedding is stage C: one embedding of the fixed combined text,
// cached by content hash and single-flight collapsed.
func (s *EnrichmentService) CombinedEmbedding(ctx context.Context, name, normalizedUnit, normalizedColor string) ([]float64, error) {
	text := material.CombinedText(name, normalizedUnit, normalizedColor)
	key := "combined:" + sha1Hex(text)

	raw, err := s.flight.GetOrFill(ctx, key, s.cacheCfg.CombinedTTL(), func(fillCtx context.Context) ([]byte, error) {
		vec, err := s.embedder.EmbedOne(fillCtx, text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(vec)
	})
	if err != nil {
		return nil, err
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, fmt.Errorf("decode combined embedding: %w", err)
	}
	return vec, nil
}

// LookupSKU is stage D: recall by combined embedding, then filter in rank
// order by unit equality and color compatibility. An empty result is a
// normal outcome, not an error.
func (s *EnrichmentService) LookupSKU(ctx context.Context, combined []float64, normalizedUnit, normalizedColor string) (SKUMatch, error) {
	matches, err := s.catalog.SearchNearest(ctx, combined, s.search.SKURecallK())
	if err != nil {
		return SKUMatch{}, err
	}

	for _, m := range matches {
		if m.Score() < s.search.SKUMinCosine() {
			break
		}
		item := m.Item()
		if item.NormalizedUnit() != normalizedUnit {
			continue
		}
		if !s.colorCompatible(normalizedColor, item.NormalizedColor()) {
			continue
		}
		return SKUMatch{SKU: item.SKU(), Similarity: m.Score()}, nil
	}
	return SKUMatch{}, nil
}

// colorCompatible implements the asymmetric rule: a colorless input accepts
// any candidate, a colored input requires exact equality. The strict
// symmetry flag additionally makes colorless inputs reject colored
// candidates.
func (s *EnrichmentService) colorCompatible(input, candidate string) bool {
	if input == "" {
		if s.search.StrictColorSymmetry() {
			return candidate == ""
		}
		return true
	}
	return input == candidate
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
