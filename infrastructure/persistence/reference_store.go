package persistence

import (
	"context"
	"fmt"
	"sort"

	"github.com/severstroy/matcat/domain/reference"
	"github.com/severstroy/matcat/domain/search"
	"github.com/severstroy/matcat/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferenceStore persists the colors and units collections, one table per
// collection.
type ReferenceStore struct {
	db database.Database
}

// NewReferenceStore creates a ReferenceStore.
func NewReferenceStore(db database.Database) *ReferenceStore {
	return &ReferenceStore{db: db}
}

func collectionTable(c reference.Collection) (string, error) {
	switch c {
	case reference.Colors, reference.Units:
		return string(c), nil
	default:
		return "", fmt.Errorf("unknown reference collection %q", c)
	}
}

// Load reads every entry of a collection.
func (s *ReferenceStore) Load(ctx context.Context, collection reference.Collection) ([]reference.Entry, error) {
	table, err := collectionTable(collection)
	if err != nil {
		return nil, err
	}
	var rows []ReferenceRow
	result := s.db.Session(ctx).Table(table).Order("canonical ASC").Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("load %s: %w", table, result.Error)
	}
	entries := make([]reference.Entry, len(rows))
	for i, r := range rows {
		entries[i] = ReferenceMapper{}.ToDomain(r)
	}
	return entries, nil
}

// Replace atomically overwrites a collection.
func (s *ReferenceStore) Replace(ctx context.Context, collection reference.Collection, entries []reference.Entry) error {
	table, err := collectionTable(collection)
	if err != nil {
		return err
	}
	rows := make([]ReferenceRow, len(entries))
	for i, e := range entries {
		rows[i] = ReferenceMapper{}.ToModel(e)
	}
	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if result := tx.Table(table).Where("1 = 1").Delete(&ReferenceRow{}); result.Error != nil {
			return fmt.Errorf("clear %s: %w", table, result.Error)
		}
		if len(rows) == 0 {
			return nil
		}
		if result := tx.Table(table).CreateInBatches(&rows, 500); result.Error != nil {
			return fmt.Errorf("fill %s: %w", table, result.Error)
		}
		return nil
	})
}

// Upsert writes a single entry keyed by canonical name.
func (s *ReferenceStore) Upsert(ctx context.Context, collection reference.Collection, entry reference.Entry) error {
	table, err := collectionTable(collection)
	if err != nil {
		return err
	}
	row := ReferenceMapper{}.ToModel(entry)
	result := s.db.Session(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canonical"}},
		UpdateAll: true,
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("upsert %s entry: %w", table, result.Error)
	}
	return nil
}

var _ reference.Store = (*ReferenceStore)(nil)

// CatalogVectorStore serves the SKU catalog. The catalog is small (tens of
// thousands of rows at most) and read-heavy, so recall loads it and ranks
// by raw cosine in memory on every driver.
type CatalogVectorStore struct {
	db database.Database
}

// NewCatalogVectorStore creates a CatalogVectorStore.
func NewCatalogVectorStore(db database.Database) *CatalogVectorStore {
	return &CatalogVectorStore{db: db}
}

// SearchNearest returns the top-k catalog items by raw cosine similarity.
func (s *CatalogVectorStore) SearchNearest(ctx context.Context, vec []float64, k int) ([]reference.CatalogMatch, error) {
	if k <= 0 || len(vec) == 0 {
		return nil, nil
	}
	var rows []CatalogRow
	if result := s.db.Session(ctx).Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("load catalog: %w", result.Error)
	}
	matches := make([]reference.CatalogMatch, 0, len(rows))
	for _, r := range rows {
		item := CatalogMapper{}.ToDomain(r)
		emb := item.EmbeddingCombined()
		if len(emb) == 0 {
			continue
		}
		matches = append(matches, reference.NewCatalogMatch(item, search.Cosine(vec, emb)))
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score() > matches[j].Score() })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Upsert writes a catalog item.
func (s *CatalogVectorStore) Upsert(ctx context.Context, item reference.CatalogItem) error {
	row := CatalogMapper{}.ToModel(item)
	result := s.db.Session(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		UpdateAll: true,
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("upsert catalog item: %w", result.Error)
	}
	return nil
}

// Count returns the catalog size.
func (s *CatalogVectorStore) Count(ctx context.Context) (int64, error) {
	var count int64
	result := s.db.Session(ctx).Model(&CatalogRow{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("count catalog: %w", result.Error)
	}
	return count, nil
}

var _ reference.CatalogStore = (*CatalogVectorStore)(nil)
