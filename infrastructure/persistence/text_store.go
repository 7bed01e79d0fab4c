package persistence

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/repository"
	"github.com/severstroy/matcat/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Field weights for text scoring. A record's score is the maximum over its
// matched fields of weight times match quality.
const (
	weightName        = 0.4
	weightDescription = 0.3
	weightUseCategory = 0.2
	weightSKU         = 0.1

	// trigramThreshold is the minimum pg_trgm similarity a fuzzy candidate
	// needs to enter the result set.
	trigramThreshold = 0.3
)

// SQLTextStore is the relational text index over the materials table. LIKE
// retrieval works on every driver; on Postgres a pg_trgm union adds fuzzy
// candidates with their similarity as match quality.
type SQLTextStore struct {
	repo database.Repository[material.Material, MaterialRow]
	db   database.Database
}

// NewSQLTextStore creates a SQLTextStore.
func NewSQLTextStore(db database.Database) *SQLTextStore {
	return &SQLTextStore{
		repo: database.NewRepository[material.Material, MaterialRow](db, MaterialMapper{}, "material"),
		db:   db,
	}
}

// Upsert writes a material row.
func (s *SQLTextStore) Upsert(ctx context.Context, m material.Material) error {
	row := s.repo.Mapper().ToModel(m)
	row.Embedding = ""
	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "use_category", "unit", "sku", "updated_at"}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("upsert material row: %w", result.Error)
	}
	return nil
}

// UpsertBatch writes material rows in one transaction.
func (s *SQLTextStore) UpsertBatch(ctx context.Context, ms []material.Material) error {
	if len(ms) == 0 {
		return nil
	}
	rows := make([]MaterialRow, len(ms))
	for i, m := range ms {
		rows[i] = s.repo.Mapper().ToModel(m)
		rows[i].Embedding = ""
	}
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "description", "use_category", "unit", "sku", "updated_at"}),
		}).Create(&rows)
		if result.Error != nil {
			return fmt.Errorf("upsert material rows: %w", result.Error)
		}
		return nil
	})
}

// Delete removes a material row by id.
func (s *SQLTextStore) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteBy(ctx, repository.WithCondition("id", id))
}

// SearchText retrieves candidates by LIKE containment (plus pg_trgm on
// Postgres) and scores each record by its best-matching field.
func (s *SQLTextStore) SearchText(ctx context.Context, text string, limit int, options ...repository.Option) ([]material.Scored, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" || limit <= 0 {
		return nil, nil
	}

	quality := make(map[string]float64)
	byID := make(map[string]material.Material)

	like := "%" + escapeLike(needle) + "%"
	q := database.ApplyConditions(s.db.Session(ctx).Model(&MaterialRow{}), options...).
		Where(
			"LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\' OR LOWER(use_category) LIKE ? ESCAPE '\\' OR LOWER(sku) LIKE ? ESCAPE '\\'",
			like, like, like, like,
		).
		Limit(limit * 4)
	var rows []MaterialRow
	if result := q.Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("search text: %w", result.Error)
	}
	for _, r := range rows {
		byID[r.ID] = MaterialMapper{}.ToDomain(r)
		quality[r.ID] = likeScore(r, needle)
	}

	if s.db.IsPostgres() {
		if err := s.addTrigramMatches(ctx, needle, limit*4, quality, byID, options...); err != nil {
			return nil, err
		}
	}

	scored := make([]material.Scored, 0, len(byID))
	for id, m := range byID {
		scored = append(scored, material.NewScored(m, quality[id]))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score() != scored[j].Score() {
			return scored[i].Score() > scored[j].Score()
		}
		return scored[i].Material().ID() < scored[j].Material().ID()
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// addTrigramMatches unions pg_trgm candidates into the result set, keeping
// the best quality per record.
func (s *SQLTextStore) addTrigramMatches(ctx context.Context, needle string, limit int, quality map[string]float64, byID map[string]material.Material, options ...repository.Option) error {
	type trgmRow struct {
		MaterialRow
		Sim float64 `gorm:"column:sim"`
	}
	q := database.ApplyConditions(s.db.Session(ctx).Table("materials"), options...).
		Select("*, GREATEST(similarity(name, ?), similarity(description, ?)) AS sim", needle, needle).
		Where("similarity(name, ?) >= ? OR similarity(description, ?) >= ?",
			needle, trigramThreshold, needle, trigramThreshold).
		Order("sim DESC").
		Limit(limit)
	var rows []trgmRow
	if result := q.Find(&rows); result.Error != nil {
		return fmt.Errorf("trigram search: %w", result.Error)
	}
	for _, r := range rows {
		score := weightName * r.Sim
		if existing, ok := quality[r.ID]; !ok || score > existing {
			quality[r.ID] = score
			byID[r.ID] = MaterialMapper{}.ToDomain(r.MaterialRow)
		}
	}
	return nil
}

// Ping verifies the backend is reachable.
func (s *SQLTextStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// likeScore computes the weighted best-field score for a LIKE candidate.
// Containment counts as full quality for the field.
func likeScore(r MaterialRow, needle string) float64 {
	best := 0.0
	check := func(value string, weight float64) {
		if value != "" && strings.Contains(strings.ToLower(value), needle) && weight > best {
			best = weight
		}
	}
	check(r.Name, weightName)
	check(r.Description, weightDescription)
	check(r.UseCategory, weightUseCategory)
	check(r.SKU, weightSKU)
	return best
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ material.TextStore = (*SQLTextStore)(nil)
