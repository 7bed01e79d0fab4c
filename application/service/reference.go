package service

import (
	"context"
	"embed"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/severstroy/matcat/domain/reference"
	"github.com/severstroy/matcat/infrastructure/provider"
	"github.com/severstroy/matcat/internal/log"
	"gopkg.in/yaml.v3"
)

//go:embed seeds/colors.yaml seeds/units.yaml
var seedFS embed.FS

type seedFile struct {
	Entries []struct {
		Canonical string   `yaml:"canonical"`
		Aliases   []string `yaml:"aliases"`
	} `yaml:"entries"`
}

// ReferenceService owns the colors and units collections. Readers resolve
// against immutable snapshots behind atomic pointers; writers rebuild and
// swap under a latch, then notify the cache layer.
type ReferenceService struct {
	store    reference.Store
	embedder provider.Embedder
	logger   *log.Logger

	colors atomic.Pointer[reference.Snapshot]
	units  atomic.Pointer[reference.Snapshot]

	// writerMu serializes Upsert/Reseed; readers never take it.
	writerMu sync.Mutex

	onChange func(ctx context.Context)
}

// ReferenceOption configures a ReferenceService.
type ReferenceOption func(*ReferenceService)

// WithReferenceChangeHook registers a callback invoked after every
// collection mutation (cache invalidation).
func WithReferenceChangeHook(fn func(ctx context.Context)) ReferenceOption {
	return func(s *ReferenceService) { s.onChange = fn }
}

// NewReferenceService creates a ReferenceService with empty snapshots.
func NewReferenceService(store reference.Store, embedder provider.Embedder, logger *log.Logger, opts ...ReferenceOption) *ReferenceService {
	s := &ReferenceService{
		store:    store,
		embedder: embedder,
		logger:   logger,
		onChange: func(context.Context) {},
	}
	s.colors.Store(reference.NewSnapshot(nil))
	s.units.Store(reference.NewSnapshot(nil))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed loads both collections: persisted entries win; an empty store is
// seeded from the YAML file at the given path, falling back to the
// embedded defaults. Entries without embeddings get them regenerated when
// an embedder is configured.
func (s *ReferenceService) Seed(ctx context.Context, colorsPath, unitsPath string) error {
	if err := s.seedCollection(ctx, reference.Colors, colorsPath, "seeds/colors.yaml"); err != nil {
		return err
	}
	return s.seedCollection(ctx, reference.Units, unitsPath, "seeds/units.yaml")
}

func (s *ReferenceService) seedCollection(ctx context.Context, collection reference.Collection, path, embedded string) error {
	entries, err := s.store.Load(ctx, collection)
	if err != nil {
		return fmt.Errorf("load %s: %w", collection, err)
	}
	if len(entries) == 0 {
		entries, err = loadSeedEntries(path, embedded)
		if err != nil {
			return fmt.Errorf("seed %s: %w", collection, err)
		}
		if err := s.store.Replace(ctx, collection, entries); err != nil {
			return fmt.Errorf("persist %s seeds: %w", collection, err)
		}
		s.logger.InfoContext(ctx, "reference collection seeded",
			"collection", string(collection), "entries", len(entries))
	}

	entries, err = s.ensureEmbeddings(ctx, collection, entries)
	if err != nil {
		return err
	}
	s.swap(collection, reference.NewSnapshot(entries))
	return nil
}

// ensureEmbeddings regenerates missing canonical embeddings in one batch
// call and persists them.
func (s *ReferenceService) ensureEmbeddings(ctx context.Context, collection reference.Collection, entries []reference.Entry) ([]reference.Entry, error) {
	if s.embedder == nil {
		return entries, nil
	}
	var missing []int
	for i, e := range entries {
		if !e.HasEmbedding() {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return entries, nil
	}

	texts := make([]string, len(missing))
	for i, idx := range missing {
		texts[i] = entries[idx].Canonical()
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s canonicals: %w", collection, err)
	}
	for i, idx := range missing {
		entries[idx] = entries[idx].WithEmbedding(vectors[i])
		if err := s.store.Upsert(ctx, collection, entries[idx]); err != nil {
			return nil, fmt.Errorf("persist %s embedding: %w", collection, err)
		}
	}
	s.logger.InfoContext(ctx, "reference embeddings regenerated",
		"collection", string(collection), "count", len(missing))
	return entries, nil
}

func loadSeedEntries(path, embedded string) ([]reference.Entry, error) {
	var raw []byte
	var err error
	if path != "" {
		raw, err = os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read seed file %s: %w", path, err)
			}
			raw = nil
		}
	}
	if raw == nil {
		raw, err = seedFS.ReadFile(embedded)
		if err != nil {
			return nil, fmt.Errorf("read embedded seed %s: %w", embedded, err)
		}
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}
	entries := make([]reference.Entry, 0, len(file.Entries))
	for _, e := range file.Entries {
		if e.Canonical == "" {
			continue
		}
		entries = append(entries, reference.NewEntry(e.Canonical, e.Aliases, nil))
	}
	return entries, nil
}

// Snapshot returns the current snapshot for a collection.
func (s *ReferenceService) Snapshot(collection reference.Collection) *reference.Snapshot {
	switch collection {
	case reference.Colors:
		return s.colors.Load()
	case reference.Units:
		return s.units.Load()
	default:
		return reference.NewSnapshot(nil)
	}
}

func (s *ReferenceService) swap(collection reference.Collection, snap *reference.Snapshot) {
	switch collection {
	case reference.Colors:
		s.colors.Store(snap)
	case reference.Units:
		s.units.Store(snap)
	}
}

// LookupExact resolves an alias to its entry.
func (s *ReferenceService) LookupExact(collection reference.Collection, name string) (reference.Entry, bool) {
	return s.Snapshot(collection).LookupExact(name)
}

// LookupNearest returns the top-k entries by cosine similarity.
func (s *ReferenceService) LookupNearest(collection reference.Collection, vec []float64, k int) []reference.Match {
	return s.Snapshot(collection).LookupNearest(vec, k)
}

// LookupFuzzy returns the top-k entries by Levenshtein similarity.
func (s *ReferenceService) LookupFuzzy(collection reference.Collection, name string, k int) []reference.Match {
	return s.Snapshot(collection).LookupFuzzy(name, k)
}

// Upsert writes one entry and swaps in a rebuilt snapshot.
func (s *ReferenceService) Upsert(ctx context.Context, collection reference.Collection, entry reference.Entry) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if !entry.HasEmbedding() && s.embedder != nil {
		vec, err := s.embedder.EmbedOne(ctx, entry.Canonical())
		if err != nil {
			return fmt.Errorf("embed canonical: %w", err)
		}
		entry = entry.WithEmbedding(vec)
	}
	if err := s.store.Upsert(ctx, collection, entry); err != nil {
		return err
	}
	return s.reloadLocked(ctx, collection)
}

// Reseed atomically replaces a collection.
func (s *ReferenceService) Reseed(ctx context.Context, collection reference.Collection, entries []reference.Entry) error {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	entries, err := s.ensureEmbeddings(ctx, collection, entries)
	if err != nil {
		return err
	}
	if err := s.store.Replace(ctx, collection, entries); err != nil {
		return err
	}
	s.swap(collection, reference.NewSnapshot(entries))
	s.onChange(ctx)
	return nil
}

func (s *ReferenceService) reloadLocked(ctx context.Context, collection reference.Collection) error {
	entries, err := s.store.Load(ctx, collection)
	if err != nil {
		return fmt.Errorf("reload %s: %w", collection, err)
	}
	s.swap(collection, reference.NewSnapshot(entries))
	s.onChange(ctx)
	return nil
}
