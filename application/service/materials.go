package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/infrastructure/cache"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
	"golang.org/x/sync/errgroup"
)

// Relational dual-write retry schedule: 100ms, 400ms, 1600ms with jitter.
const (
	sqlRetryInitial    = 100 * time.Millisecond
	sqlRetryMultiplier = 4.0
	sqlRetryJitter     = 0.2
	sqlRetryMax        = 3

	// createBatchParallelism bounds concurrent chunks in CreateBatch.
	createBatchParallelism = 4
)

// Outcome is the per-item result of a batch mutation, positioned by input
// index.
type Outcome struct {
	Index int
	ID    string
	Err   error
}

// MaterialsService is the single read/write path for materials: cache-aside
// reads against the authoritative vector store, dual writes with a
// reconciliation outbox for the relational side.
type MaterialsService struct {
	vectors  material.VectorStore
	texts    material.TextStore
	cache    cache.Cache
	flight   *cache.Flight
	embedder provider.Embedder
	outbox   *persistence.OutboxStore
	cacheCfg config.CacheConfig
	batchCfg config.BatchConfig
	logger   *log.Logger
}

// NewMaterialsService creates a MaterialsService. texts may be nil when the
// relational side is unavailable; writes then queue reconciliation events
// and reads stay vector-only.
func NewMaterialsService(
	vectors material.VectorStore,
	texts material.TextStore,
	c cache.Cache,
	embedder provider.Embedder,
	outbox *persistence.OutboxStore,
	cacheCfg config.CacheConfig,
	batchCfg config.BatchConfig,
	logger *log.Logger,
) *MaterialsService {
	return &MaterialsService{
		vectors:  vectors,
		texts:    texts,
		cache:    c,
		flight:   cache.NewFlight(c),
		embedder: embedder,
		outbox:   outbox,
		cacheCfg: cacheCfg,
		batchCfg: batchCfg,
		logger:   logger,
	}
}

// VectorStore exposes the authoritative store for the search engine.
func (s *MaterialsService) VectorStore() material.VectorStore { return s.vectors }

// TextStore exposes the relational store, nil when disabled.
func (s *MaterialsService) TextStore() material.TextStore { return s.texts }

func materialKey(id string) string { return "mat:" + id }

func batchKey(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return "mat:batch:" + sha1Hex(strings.Join(sorted, ","))
}

// Get reads one material, cache-aside with the configured TTL.
func (s *MaterialsService) Get(ctx context.Context, id string) (material.Material, error) {
	if raw, err := s.cache.Get(ctx, materialKey(id)); err == nil {
		if m, derr := decodeMaterial(raw); derr == nil {
			return m, nil
		}
	}

	m, err := s.vectors.Get(ctx, id)
	if err != nil {
		return material.Material{}, err
	}
	s.cacheMaterial(ctx, m)
	return m, nil
}

// GetBatch reads materials preserving input order; cache hits and misses
// are partitioned, misses fetched in one vector round trip.
func (s *MaterialsService) GetBatch(ctx context.Context, ids []string) ([]material.Material, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = materialKey(id)
	}
	hits, err := s.cache.GetBatch(ctx, keys)
	if err != nil {
		hits = nil
	}

	found := make(map[string]material.Material, len(ids))
	var misses []string
	for _, id := range ids {
		raw, ok := hits[materialKey(id)]
		if !ok {
			misses = append(misses, id)
			continue
		}
		m, derr := decodeMaterial(raw)
		if derr != nil {
			misses = append(misses, id)
			continue
		}
		found[id] = m
	}

	if len(misses) > 0 {
		fetched, err := s.vectors.GetBatch(ctx, misses)
		if err != nil {
			return nil, err
		}
		fill := make(map[string][]byte, len(fetched))
		for _, m := range fetched {
			found[m.ID()] = m
			if raw, merr := encodeMaterial(m); merr == nil {
				fill[materialKey(m.ID())] = raw
			}
		}
		if len(fill) > 0 {
			_ = s.cache.SetBatch(ctx, fill, s.cacheCfg.MaterialTTL())
		}
	}

	out := make([]material.Material, 0, len(found))
	for _, id := range ids {
		if m, ok := found[id]; ok {
			out = append(out, m)
		}
	}
	if raw, merr := json.Marshal(len(out)); merr == nil {
		// batch key records only presence; per-id entries carry the data
		_ = s.cache.Set(ctx, batchKey(ids), raw, s.cacheCfg.MaterialTTL())
	}
	return out, nil
}

// Create writes a new material to both stores. The embedding is computed
// when absent.
func (s *MaterialsService) Create(ctx context.Context, m material.Material) (material.Material, error) {
	if err := m.Validate(); err != nil {
		return material.Material{}, err
	}
	if len(m.Embedding()) == 0 {
		vec, err := s.embedder.EmbedOne(ctx, embeddingText(m))
		if err != nil {
			return material.Material{}, err
		}
		m = m.WithEmbedding(vec)
	}

	if err := s.vectors.Upsert(ctx, m); err != nil {
		return material.Material{}, err
	}
	s.writeRelational(ctx, persistence.OutboxOpUpsert, m)
	s.cacheMaterial(ctx, m)
	s.invalidateSearches(ctx)
	return m, nil
}

// CreateBatch writes materials in chunks with bounded parallelism. Partial
// success: each input slot gets its own outcome.
func (s *MaterialsService) CreateBatch(ctx context.Context, ms []material.Material) []Outcome {
	outcomes := make([]Outcome, len(ms))
	chunkSize := s.batchCfg.ChunkSize()
	if chunkSize <= 0 {
		chunkSize = 50
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(createBatchParallelism)
	for start := 0; start < len(ms); start += chunkSize {
		end := start + chunkSize
		if end > len(ms) {
			end = len(ms)
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				created, err := s.Create(gctx, ms[i])
				outcomes[i] = Outcome{Index: i, ID: created.ID(), Err: err}
				if err != nil {
					outcomes[i].ID = ms[i].ID()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Patch is a partial material update; nil fields stay untouched.
type Patch struct {
	Name        *string
	Description *string
	UseCategory *string
	Unit        *string
	SKU         *string
}

func (p Patch) touchesEmbedding() bool {
	return p.Name != nil || p.Description != nil || p.UseCategory != nil || p.Unit != nil
}

// Update applies a read-modify-write patch. The embedding regenerates only
// when an embedded field actually changed.
func (s *MaterialsService) Update(ctx context.Context, id string, patch Patch) (material.Material, error) {
	current, err := s.vectors.Get(ctx, id)
	if err != nil {
		return material.Material{}, err
	}

	updated := current
	if patch.Name != nil {
		updated = updated.WithName(*patch.Name)
	}
	if patch.Description != nil {
		updated = updated.WithDescription(*patch.Description)
	}
	if patch.UseCategory != nil {
		updated = updated.WithUseCategory(*patch.UseCategory)
	}
	if patch.Unit != nil {
		updated = updated.WithUnit(*patch.Unit)
	}
	if patch.SKU != nil {
		updated = updated.WithSKU(*patch.SKU)
	}
	if err := updated.Validate(); err != nil {
		return material.Material{}, err
	}

	if patch.touchesEmbedding() && embeddingText(updated) != embeddingText(current) {
		vec, err := s.embedder.EmbedOne(ctx, embeddingText(updated))
		if err != nil {
			return material.Material{}, err
		}
		updated = updated.WithEmbedding(vec)
	}

	if err := s.vectors.Upsert(ctx, updated); err != nil {
		return material.Material{}, err
	}
	s.writeRelational(ctx, persistence.OutboxOpUpsert, updated)
	s.cacheMaterial(ctx, updated)
	s.invalidateSearches(ctx)
	return updated, nil
}

// Delete removes a material from both stores and the cache.
func (s *MaterialsService) Delete(ctx context.Context, id string) error {
	if _, err := s.vectors.Get(ctx, id); err != nil {
		return err
	}
	if err := s.vectors.Delete(ctx, id); err != nil {
		return err
	}
	s.deleteRelational(ctx, id)
	_ = s.cache.Delete(ctx, materialKey(id))
	s.invalidateSearches(ctx)
	return nil
}

// writeRelational runs the best-effort side of the dual write: bounded
// retries, then a durable reconciliation event. Never fails the caller.
func (s *MaterialsService) writeRelational(ctx context.Context, op string, m material.Material) {
	if s.texts == nil {
		s.queueReconciliation(ctx, op, m)
		return
	}
	err := s.retrySQL(ctx, func() error { return s.texts.Upsert(ctx, m) })
	if err != nil {
		s.logger.WarnContext(ctx, "relational write exhausted retries",
			"material_id", m.ID(), "error", err)
		s.queueReconciliation(ctx, op, m)
	}
}

func (s *MaterialsService) deleteRelational(ctx context.Context, id string) {
	if s.texts == nil {
		s.queueDeleteReconciliation(ctx, id)
		return
	}
	err := s.retrySQL(ctx, func() error { return s.texts.Delete(ctx, id) })
	if err != nil {
		s.logger.WarnContext(ctx, "relational delete exhausted retries",
			"material_id", id, "error", err)
		s.queueDeleteReconciliation(ctx, id)
	}
}

func (s *MaterialsService) retrySQL(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = sqlRetryInitial
	b.Multiplier = sqlRetryMultiplier
	b.RandomizationFactor = sqlRetryJitter
	b.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, sqlRetryMax), ctx))
}

func (s *MaterialsService) queueReconciliation(ctx context.Context, op string, m material.Material) {
	if s.outbox == nil {
		return
	}
	payload, err := encodeMaterial(m)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode reconciliation payload", "material_id", m.ID(), "error", err)
		return
	}
	if err := s.outbox.Append(ctx, op, m.ID(), payload); err != nil {
		s.logger.ErrorContext(ctx, "append reconciliation event", "material_id", m.ID(), "error", err)
	}
}

func (s *MaterialsService) queueDeleteReconciliation(ctx context.Context, id string) {
	if s.outbox == nil {
		return
	}
	if err := s.outbox.Append(ctx, persistence.OutboxOpDelete, id, nil); err != nil {
		s.logger.ErrorContext(ctx, "append reconciliation event", "material_id", id, "error", err)
	}
}

func (s *MaterialsService) cacheMaterial(ctx context.Context, m material.Material) {
	raw, err := encodeMaterial(m)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, materialKey(m.ID()), raw, s.cacheCfg.MaterialTTL())
}

// invalidateSearches pattern-deletes derived keys after every mutation.
// Residual keys age out via TTL.
func (s *MaterialsService) invalidateSearches(ctx context.Context) {
	for _, pattern := range []string{"search:*", "suggest:*", "mat:batch:*"} {
		if _, err := s.cache.DeletePattern(ctx, pattern); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation failed", "pattern", pattern, "error", err)
		}
	}
}

// embeddingText is the material-level embedding input: the name plus the
// description when present.
func embeddingText(m material.Material) string {
	if m.Description() == "" {
		return m.Name()
	}
	return m.Name() + "\n" + m.Description()
}

type materialDoc struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UseCategory string    `json:"use_category,omitempty"`
	Unit        string    `json:"unit"`
	SKU         string    `json:"sku,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Embedding   []float64 `json:"embedding,omitempty"`
}

func encodeMaterial(m material.Material) ([]byte, error) {
	return json.Marshal(materialDoc{
		ID:          m.ID(),
		Name:        m.Name(),
		Description: m.Description(),
		UseCategory: m.UseCategory(),
		Unit:        m.Unit(),
		SKU:         m.SKU(),
		CreatedAt:   m.CreatedAt(),
		UpdatedAt:   m.UpdatedAt(),
		Embedding:   m.Embedding(),
	})
}

func decodeMaterial(raw []byte) (material.Material, error) {
	var doc materialDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return material.Material{}, fmt.Errorf("decode cached material: %w", err)
	}
	if doc.ID == "" {
		return material.Material{}, errors.New("cached material missing id")
	}
	return material.Restore(doc.ID, doc.Name, doc.Description, doc.UseCategory,
		doc.Unit, doc.SKU, doc.CreatedAt, doc.UpdatedAt, doc.Embedding), nil
}

// EncodeMaterialPayload serializes a material into the reconciliation
// event payload form.
func EncodeMaterialPayload(m material.Material) ([]byte, error) {
	return encodeMaterial(m)
}

// DecodeMaterialPayload rebuilds a material from a reconciliation event
// payload.
func DecodeMaterialPayload(raw []byte) (material.Material, error) {
	m, err := decodeMaterial(raw)
	if err != nil {
		return material.Material{}, fault.Wrap(fault.Internal, "reconciliation payload", err)
	}
	return m, nil
}
