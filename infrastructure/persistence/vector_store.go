package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/repository"
	"github.com/severstroy/matcat/domain/search"
	"github.com/severstroy/matcat/internal/database"
	"gorm.io/gorm/clause"
)

// NewVectorStore returns the vector store for the database driver: native
// pgvector on Postgres, JSON embeddings with in-memory cosine on SQLite.
func NewVectorStore(db database.Database, dimension int) material.VectorStore {
	if db.IsPostgres() {
		return NewPgVectorStore(db, dimension)
	}
	return NewSQLiteVectorStore(db)
}

// SQLiteVectorStore stores embeddings as JSON arrays and ranks
// nearest-neighbor queries in memory. It backs tests and the zero-config
// development setup.
type SQLiteVectorStore struct {
	repo database.Repository[material.Material, MaterialRow]
	db   database.Database
}

// NewSQLiteVectorStore creates a SQLiteVectorStore.
func NewSQLiteVectorStore(db database.Database) *SQLiteVectorStore {
	return &SQLiteVectorStore{
		repo: database.NewRepository[material.Material, MaterialRow](db, MaterialMapper{}, "material"),
		db:   db,
	}
}

// Get retrieves a material by id.
func (s *SQLiteVectorStore) Get(ctx context.Context, id string) (material.Material, error) {
	m, err := s.repo.FindOne(ctx, repository.WithCondition("id", id))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return material.Material{}, fault.NewNotFound("material", id)
		}
		return material.Material{}, err
	}
	return m, nil
}

// GetBatch retrieves materials by id, preserving input order.
func (s *SQLiteVectorStore) GetBatch(ctx context.Context, ids []string) ([]material.Material, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.repo.Find(ctx, repository.WithConditionIn("id", ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]material.Material, len(found))
	for _, m := range found {
		byID[m.ID()] = m
	}
	out := make([]material.Material, 0, len(found))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Upsert writes a material, replacing any row with the same id.
func (s *SQLiteVectorStore) Upsert(ctx context.Context, m material.Material) error {
	row := s.repo.Mapper().ToModel(m)
	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("upsert material: %w", result.Error)
	}
	return nil
}

// UpsertBatch writes materials in one statement.
func (s *SQLiteVectorStore) UpsertBatch(ctx context.Context, ms []material.Material) error {
	if len(ms) == 0 {
		return nil
	}
	rows := make([]MaterialRow, len(ms))
	for i, m := range ms {
		rows[i] = s.repo.Mapper().ToModel(m)
	}
	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&rows)
	if result.Error != nil {
		return fmt.Errorf("upsert materials: %w", result.Error)
	}
	return nil
}

// Delete removes a material by id.
func (s *SQLiteVectorStore) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteBy(ctx, repository.WithCondition("id", id))
}

// SearchNearest applies the payload filters in SQL and ranks by cosine
// similarity in memory.
func (s *SQLiteVectorStore) SearchNearest(ctx context.Context, vector []float64, k int, options ...repository.Option) ([]material.Scored, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}
	candidates, err := s.repo.Find(ctx, options...)
	if err != nil {
		return nil, err
	}
	scored := make([]material.Scored, 0, len(candidates))
	for _, m := range candidates {
		emb := m.Embedding()
		if len(emb) == 0 {
			continue
		}
		scored = append(scored, material.NewScored(m, search.NormalizeCosine(search.Cosine(vector, emb))))
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score() > scored[j].Score() })
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Find lists materials matching the options.
func (s *SQLiteVectorStore) Find(ctx context.Context, options ...repository.Option) ([]material.Material, error) {
	return s.repo.Find(ctx, options...)
}

// Count returns the number of matching materials.
func (s *SQLiteVectorStore) Count(ctx context.Context, options ...repository.Option) (int64, error) {
	return s.repo.Count(ctx, options...)
}

// Ping verifies the backend is reachable.
func (s *SQLiteVectorStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

var _ material.VectorStore = (*SQLiteVectorStore)(nil)
