package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/repository"
	"github.com/severstroy/matcat/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pgMaterialRow mirrors MaterialRow with a native vector-typed embedding.
type pgMaterialRow struct {
	ID          string            `gorm:"column:id;primaryKey"`
	Name        string            `gorm:"column:name"`
	Description string            `gorm:"column:description"`
	UseCategory string            `gorm:"column:use_category"`
	Unit        string            `gorm:"column:unit"`
	SKU         string            `gorm:"column:sku"`
	CreatedAt   time.Time         `gorm:"column:created_at"`
	UpdatedAt   time.Time         `gorm:"column:updated_at"`
	Embedding   database.PgVector `gorm:"column:embedding;type:vector"`
}

func (pgMaterialRow) TableName() string { return "materials" }

func (r pgMaterialRow) toDomain() material.Material {
	return material.Restore(r.ID, r.Name, r.Description, r.UseCategory, r.Unit, r.SKU,
		r.CreatedAt, r.UpdatedAt, r.Embedding.Floats())
}

func pgRowFrom(m material.Material) pgMaterialRow {
	return pgMaterialRow{
		ID:          m.ID(),
		Name:        m.Name(),
		Description: m.Description(),
		UseCategory: m.UseCategory(),
		Unit:        m.Unit(),
		SKU:         m.SKU(),
		CreatedAt:   m.CreatedAt(),
		UpdatedAt:   m.UpdatedAt(),
		Embedding:   database.NewPgVector(m.Embedding()),
	}
}

// PgVectorStore is the authoritative vector store on Postgres. Searches use
// the pgvector cosine distance operator; scores are normalized into [0, 1]
// as 1 - distance/2.
type PgVectorStore struct {
	db        database.Database
	dimension int
}

// NewPgVectorStore creates a PgVectorStore.
func NewPgVectorStore(db database.Database, dimension int) *PgVectorStore {
	return &PgVectorStore{db: db, dimension: dimension}
}

// Dimension returns the configured embedding dimension.
func (s *PgVectorStore) Dimension() int { return s.dimension }

// Get retrieves a material by id.
func (s *PgVectorStore) Get(ctx context.Context, id string) (material.Material, error) {
	var row pgMaterialRow
	result := s.db.Session(ctx).Where("id = ?", id).First(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return material.Material{}, fault.NewNotFound("material", id)
		}
		return material.Material{}, fmt.Errorf("get material: %w", result.Error)
	}
	return row.toDomain(), nil
}

// GetBatch retrieves materials by id, preserving input order.
func (s *PgVectorStore) GetBatch(ctx context.Context, ids []string) ([]material.Material, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []pgMaterialRow
	result := s.db.Session(ctx).Where("id IN ?", ids).Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("get materials: %w", result.Error)
	}
	byID := make(map[string]material.Material, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.toDomain()
	}
	out := make([]material.Material, 0, len(rows))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Upsert writes a material, replacing any row with the same id.
func (s *PgVectorStore) Upsert(ctx context.Context, m material.Material) error {
	if err := s.checkDimension(m); err != nil {
		return err
	}
	row := pgRowFrom(m)
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
func (s *PgVectorStore) UpsertBatch(ctx context.Context, ms []material.Material) error {
	if len(ms) == 0 {
		return nil
	}
	rows := make([]pgMaterialRow, len(ms))
	for i, m := range ms {
		if err := s.checkDimension(m); err != nil {
			return err
		}
		rows[i] = pgRowFrom(m)
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
func (s *PgVectorStore) Delete(ctx context.Context, id string) error {
	result := s.db.Session(ctx).Where("id = ?", id).Delete(&pgMaterialRow{})
	if result.Error != nil {
		return fmt.Errorf("delete material: %w", result.Error)
	}
	return nil
}

// SearchNearest runs a cosine-distance query with payload filters pushed
// into the WHERE clause.
func (s *PgVectorStore) SearchNearest(ctx context.Context, vector []float64, k int, options ...repository.Option) ([]material.Scored, error) {
	if k <= 0 || len(vector) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fault.New(fault.EmbeddingShape,
			fmt.Sprintf("query vector has dimension %d, store expects %d", len(vector), s.dimension))
	}

	type scoredRow struct {
		pgMaterialRow
		Score float64 `gorm:"column:score"`
	}

	vec := database.NewPgVector(vector)
	q := s.db.Session(ctx).
		Table("materials").
		Select("*, 1 - (embedding <=> ?) / 2 AS score", vec).
		Where("embedding IS NOT NULL")
	q = database.ApplyConditions(q, options...)
	q = q.Order(clause.Expr{SQL: "embedding <=> ?", Vars: []any{vec}}).Limit(k)

	var rows []scoredRow
	if result := q.Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("search nearest: %w", result.Error)
	}

	scored := make([]material.Scored, len(rows))
	for i, r := range rows {
		scored[i] = material.NewScored(r.toDomain(), r.Score)
	}
	return scored, nil
}

// Find lists materials matching the options.
func (s *PgVectorStore) Find(ctx context.Context, options ...repository.Option) ([]material.Material, error) {
	var rows []pgMaterialRow
	q := database.ApplyOptions(s.db.Session(ctx).Model(&pgMaterialRow{}), options...)
	if result := q.Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("find materials: %w", result.Error)
	}
	out := make([]material.Material, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// Count returns the number of matching materials.
func (s *PgVectorStore) Count(ctx context.Context, options ...repository.Option) (int64, error) {
	var count int64
	q := database.ApplyConditions(s.db.Session(ctx).Model(&pgMaterialRow{}), options...)
	if result := q.Count(&count); result.Error != nil {
		return 0, fmt.Errorf("count materials: %w", result.Error)
	}
	return count, nil
}

// Ping verifies the backend is reachable.
func (s *PgVectorStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PgVectorStore) checkDimension(m material.Material) error {
	emb := m.Embedding()
	if len(emb) > 0 && len(emb) != s.dimension {
		return fault.New(fault.EmbeddingShape,
			fmt.Sprintf("material %s embedding has dimension %d, store expects %d", m.ID(), len(emb), s.dimension))
	}
	return nil
}

var _ material.VectorStore = (*PgVectorStore)(nil)
