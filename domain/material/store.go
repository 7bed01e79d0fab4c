package material

import (
	"context"

	"github.com/severstroy/matcat/domain/repository"
)

// Scored pairs a material with a search score in [0, 1].
type Scored struct {
	material Material
	score    float64
}

// NewScored creates a Scored result.
func NewScored(m Material, score float64) Scored {
	return Scored{material: m, score: score}
}

// Material returns the matched material.
func (s Scored) Material() Material { return s.material }

// Score returns the search score.
func (s Scored) Score() float64 { return s.score }

// WithScore returns a copy with the score replaced.
func (s Scored) WithScore(score float64) Scored {
	s.score = score
	return s
}

// VectorStore is the authoritative store: CRUD plus nearest-neighbor search
// with payload filter push-down.
type VectorStore interface {
	// Get retrieves a material by id.
	Get(ctx context.Context, id string) (Material, error)

	// GetBatch retrieves materials by id, preserving input order. Missing
	// ids are skipped.
	GetBatch(ctx context.Context, ids []string) ([]Material, error)

	// Upsert writes a material (insert or replace by id).
	Upsert(ctx context.Context, m Material) error

	// UpsertBatch writes materials in one round trip.
	UpsertBatch(ctx context.Context, ms []Material) error

	// Delete removes a material by id.
	Delete(ctx context.Context, id string) error

	// SearchNearest returns the top-k materials by cosine similarity to the
	// query vector, after applying the given payload filters.
	SearchNearest(ctx context.Context, vector []float64, k int, options ...repository.Option) ([]Scored, error)

	// Find lists materials matching the given options (payload filters only).
	Find(ctx context.Context, options ...repository.Option) ([]Material, error)

	// Count returns the number of matching materials.
	Count(ctx context.Context, options ...repository.Option) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// TextStore is the optional relational index providing exact/LIKE/trigram
// search and transactional writes.
type TextStore interface {
	// Upsert writes a material row.
	Upsert(ctx context.Context, m Material) error

	// UpsertBatch writes material rows in one transaction.
	UpsertBatch(ctx context.Context, ms []Material) error

	// Delete removes a material row by id.
	Delete(ctx context.Context, id string) error

	// SearchText runs exact/LIKE (and trigram where available) matching over
	// name, description, and sku, returning weighted per-record scores.
	SearchText(ctx context.Context, text string, limit int, options ...repository.Option) ([]Scored, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
