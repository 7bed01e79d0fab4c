package reference

import "context"

// Store persists reference-collection entries. The application keeps a
// read-only snapshot in memory; the store is the durable side.
type Store interface {
	// Load reads every entry of a collection.
	Load(ctx context.Context, collection Collection) ([]Entry, error)

	// Replace atomically overwrites a collection with the given entries.
	Replace(ctx context.Context, collection Collection, entries []Entry) error

	// Upsert writes a single entry keyed by canonical name.
	Upsert(ctx context.Context, collection Collection, entry Entry) error
}

// CatalogStore serves the SKU catalog: vector recall over combined
// embeddings. Read-only at request time.
type CatalogStore interface {
	// SearchNearest returns the top-k catalog items by raw cosine
	// similarity against the combined embedding.
	SearchNearest(ctx context.Context, vec []float64, k int) ([]CatalogMatch, error)

	// Upsert writes a catalog item (seeding/admin only).
	Upsert(ctx context.Context, item CatalogItem) error

	// Count returns the catalog size.
	Count(ctx context.Context) (int64, error)
}

// CatalogMatch pairs a catalog item with its raw cosine similarity.
type CatalogMatch struct {
	item  CatalogItem
	score float64
}

// NewCatalogMatch creates a CatalogMatch.
func NewCatalogMatch(item CatalogItem, score float64) CatalogMatch {
	return CatalogMatch{item: item, score: score}
}

// Item returns the catalog item.
func (m CatalogMatch) Item() CatalogItem { return m.item }

// Score returns the raw cosine similarity.
func (m CatalogMatch) Score() float64 { return m.score }
