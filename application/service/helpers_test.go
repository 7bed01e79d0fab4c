package service_test

import (
	"context"
	"crypto/sha1"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/reference"
	"github.com/severstroy/matcat/domain/repository"
	"github.com/severstroy/matcat/domain/search"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/config"
	"github.com/severstroy/matcat/internal/log"
)

func testLogger() *log.Logger {
	return log.NewLoggerWithWriter(io.Discard, config.LogFormatText, "ERROR")
}

// fakeEmbedder returns fixed vectors for known texts and a deterministic
// hash-derived vector otherwise.
type fakeEmbedder struct {
	mu      sync.Mutex
	fixed   map[string][]float64
	calls   []string
	failAll bool
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{fixed: make(map[string][]float64)}
}

func (e *fakeEmbedder) set(text string, vec []float64) { e.fixed[text] = vec }

func (e *fakeEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failAll {
		return nil, fault.New(fault.EmbeddingUnavailable, "embedder down")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		e.calls = append(e.calls, t)
		out[i] = e.vectorFor(t)
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	vs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vs[0], nil
}

func (e *fakeEmbedder) Dimension() int { return 4 }

func (e *fakeEmbedder) vectorFor(text string) []float64 {
	if v, ok := e.fixed[text]; ok {
		return append([]float64(nil), v...)
	}
	sum := sha1.Sum([]byte(text))
	v := make([]float64, 4)
	for i := range v {
		v[i] = float64(sum[i])/255 + 0.01
	}
	return v
}

// fakeParser returns configured parse results by material name.
type fakeParser struct {
	results map[string]provider.ParseResult
	err     error
}

func newFakeParser() *fakeParser {
	return &fakeParser{results: make(map[string]provider.ParseResult)}
}

func (p *fakeParser) ParseMaterial(_ context.Context, name, _ string) (provider.ParseResult, error) {
	if p.err != nil {
		return provider.ParseResult{}, p.err
	}
	return p.results[name], nil
}

// memRefStore is an in-memory reference.Store.
type memRefStore struct {
	mu   sync.Mutex
	data map[reference.Collection]map[string]reference.Entry
}

func newMemRefStore() *memRefStore {
	return &memRefStore{data: map[reference.Collection]map[string]reference.Entry{
		reference.Colors: {},
		reference.Units:  {},
	}}
}

func (s *memRefStore) Load(_ context.Context, c reference.Collection) ([]reference.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reference.Entry
	for _, e := range s.data[c] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Canonical() < out[j].Canonical() })
	return out, nil
}

func (s *memRefStore) Replace(_ context.Context, c reference.Collection, entries []reference.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[string]reference.Entry, len(entries))
	for _, e := range entries {
		m[e.Canonical()] = e
	}
	s.data[c] = m
	return nil
}

func (s *memRefStore) Upsert(_ context.Context, c reference.Collection, e reference.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[c][e.Canonical()] = e
	return nil
}

// fakeCatalog is an in-memory reference.CatalogStore using raw cosine.
type fakeCatalog struct {
	items []reference.CatalogItem
	err   error
}

func (c *fakeCatalog) SearchNearest(_ context.Context, vec []float64, k int) ([]reference.CatalogMatch, error) {
	if c.err != nil {
		return nil, c.err
	}
	matches := make([]reference.CatalogMatch, 0, len(c.items))
	for _, item := range c.items {
		matches = append(matches, reference.NewCatalogMatch(item, search.Cosine(vec, item.EmbeddingCombined())))
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score() > matches[j].Score() })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (c *fakeCatalog) Upsert(_ context.Context, item reference.CatalogItem) error {
	c.items = append(c.items, item)
	return nil
}

func (c *fakeCatalog) Count(context.Context) (int64, error) { return int64(len(c.items)), nil }

// fakeVectorStore is an in-memory material.VectorStore with fail switches.
type fakeVectorStore struct {
	mu        sync.Mutex
	materials map[string]material.Material
	order     []string
	failAll   bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{materials: make(map[string]material.Material)}
}

func (s *fakeVectorStore) fail(err bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

func (s *fakeVectorStore) check() error {
	if s.failAll {
		return fault.New(fault.Internal, "vector store down")
	}
	return nil
}

func (s *fakeVectorStore) Get(_ context.Context, id string) (material.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return material.Material{}, err
	}
	m, ok := s.materials[id]
	if !ok {
		return material.Material{}, fault.NewNotFound("material", id)
	}
	return m, nil
}

func (s *fakeVectorStore) GetBatch(_ context.Context, ids []string) ([]material.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []material.Material
	for _, id := range ids {
		if m, ok := s.materials[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeVectorStore) Upsert(_ context.Context, m material.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if _, ok := s.materials[m.ID()]; !ok {
		s.order = append(s.order, m.ID())
	}
	s.materials[m.ID()] = m
	return nil
}

func (s *fakeVectorStore) UpsertBatch(ctx context.Context, ms []material.Material) error {
	for _, m := range ms {
		if err := s.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeVectorStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	delete(s.materials, id)
	return nil
}

func (s *fakeVectorStore) SearchNearest(_ context.Context, vec []float64, k int, options ...repository.Option) ([]material.Scored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []material.Scored
	for _, id := range s.order {
		m, ok := s.materials[id]
		if !ok || !m.HasEmbedding() {
			continue
		}
		score := search.NormalizeCosine(search.Cosine(vec, m.Embedding()))
		out = append(out, material.NewScored(m, score))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score() > out[j].Score() })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *fakeVectorStore) Find(_ context.Context, options ...repository.Option) ([]material.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []material.Material
	for _, id := range s.order {
		if m, ok := s.materials[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeVectorStore) Count(ctx context.Context, options ...repository.Option) (int64, error) {
	ms, err := s.Find(ctx)
	return int64(len(ms)), err
}

func (s *fakeVectorStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}

// fakeTextStore is an in-memory material.TextStore with naive substring
// scoring.
type fakeTextStore struct {
	mu        sync.Mutex
	materials map[string]material.Material
	failAll   bool
	upserts   int
}

func newFakeTextStore() *fakeTextStore {
	return &fakeTextStore{materials: make(map[string]material.Material)}
}

func (s *fakeTextStore) fail(err bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = err
}

func (s *fakeTextStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func (s *fakeTextStore) check() error {
	if s.failAll {
		return fault.New(fault.Internal, "text store down")
	}
	return nil
}

func (s *fakeTextStore) Upsert(_ context.Context, m material.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.materials[m.ID()] = m
	s.upserts++
	return nil
}

func (s *fakeTextStore) UpsertBatch(ctx context.Context, ms []material.Material) error {
	for _, m := range ms {
		if err := s.Upsert(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeTextStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	delete(s.materials, id)
	return nil
}

func (s *fakeTextStore) SearchText(_ context.Context, text string, limit int, options ...repository.Option) ([]material.Scored, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	var out []material.Scored
	for _, m := range s.materials {
		if strings.Contains(strings.ToLower(m.Name()), needle) {
			out = append(out, material.NewScored(m, search.WeightName))
		} else if strings.Contains(strings.ToLower(m.Description()), needle) {
			out = append(out, material.NewScored(m, search.WeightDescription))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score() != out[j].Score() {
			return out[i].Score() > out[j].Score()
		}
		return out[i].Material().ID() < out[j].Material().ID()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeTextStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}
