package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/severstroy/matcat/domain/pricelist"
	"github.com/severstroy/matcat/internal/database"
	"gorm.io/gorm"
)

// PriceStore persists supplier price lists into per-supplier tables named
// supplier_{id}_prices. Tables are created lazily on the first upload;
// re-ingesting a pricelist id replaces its rows.
type PriceStore struct {
	db database.Database
}

// NewPriceStore creates a PriceStore.
func NewPriceStore(db database.Database) *PriceStore {
	return &PriceStore{db: db}
}

// Save replaces the upload's rows under the supplier scope.
func (s *PriceStore) Save(ctx context.Context, p pricelist.PriceList) error {
	table := supplierTable(p.SupplierID())
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}

	rows := p.Rows()
	models := make([]PriceRow, len(rows))
	for i, r := range rows {
		models[i] = PriceMapper{}.ToModel(r)
		models[i].SupplierID = p.SupplierID()
		models[i].PricelistID = p.PricelistID()
		models[i].UploadedAt = p.UploadedAt()
	}

	return database.WithTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if result := tx.Table(table).Where("pricelist_id = ?", p.PricelistID()).Delete(&PriceRow{}); result.Error != nil {
			return fmt.Errorf("replace pricelist rows: %w", result.Error)
		}
		if len(models) == 0 {
			return nil
		}
		if result := tx.Table(table).CreateInBatches(&models, 500); result.Error != nil {
			return fmt.Errorf("insert pricelist rows: %w", result.Error)
		}
		return nil
	})
}

// List returns rows for a supplier, optionally narrowed to one pricelist.
func (s *PriceStore) List(ctx context.Context, supplierID, pricelistID string, limit, offset int) ([]pricelist.Row, error) {
	table := supplierTable(supplierID)
	if !s.tableExists(ctx, table) {
		return nil, nil
	}

	q := s.db.Session(ctx).Table(table).Order("uploaded_at DESC, id ASC")
	if pricelistID != "" {
		q = q.Where("pricelist_id = ?", pricelistID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var rows []PriceRow
	if result := q.Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("list prices: %w", result.Error)
	}
	out := make([]pricelist.Row, len(rows))
	for i, r := range rows {
		out[i] = PriceMapper{}.ToDomain(r)
	}
	return out, nil
}

// Count returns the row count for a supplier scope.
func (s *PriceStore) Count(ctx context.Context, supplierID, pricelistID string) (int64, error) {
	table := supplierTable(supplierID)
	if !s.tableExists(ctx, table) {
		return 0, nil
	}
	q := s.db.Session(ctx).Table(table)
	if pricelistID != "" {
		q = q.Where("pricelist_id = ?", pricelistID)
	}
	var count int64
	if result := q.Count(&count); result.Error != nil {
		return 0, fmt.Errorf("count prices: %w", result.Error)
	}
	return count, nil
}

// LatestPricelistID returns the id of the most recent upload for a
// supplier, empty when no upload exists. Ties on uploaded_at resolve to
// the higher row id, so the later insert wins.
func (s *PriceStore) LatestPricelistID(ctx context.Context, supplierID string) (string, error) {
	table := supplierTable(supplierID)
	if !s.tableExists(ctx, table) {
		return "", nil
	}
	var ids []string
	result := s.db.Session(ctx).Table(table).
		Select("pricelist_id").
		Order("uploaded_at DESC, id DESC").
		Limit(1).
		Find(&ids)
	if result.Error != nil {
		return "", fmt.Errorf("latest pricelist: %w", result.Error)
	}
	if len(ids) == 0 {
		return "", nil
	}
	return ids[0], nil
}

// DeleteSupplier drops the supplier's price table.
func (s *PriceStore) DeleteSupplier(ctx context.Context, supplierID string) error {
	table := supplierTable(supplierID)
	if !s.tableExists(ctx, table) {
		return nil
	}
	if err := s.db.Session(ctx).Migrator().DropTable(table); err != nil {
		return fmt.Errorf("drop supplier table: %w", err)
	}
	return nil
}

func (s *PriceStore) ensureTable(ctx context.Context, table string) error {
	if s.tableExists(ctx, table) {
		return nil
	}
	if err := s.db.Session(ctx).Table(table).AutoMigrate(&PriceRow{}); err != nil {
		return fmt.Errorf("create supplier table: %w", err)
	}
	return nil
}

func (s *PriceStore) tableExists(ctx context.Context, table string) bool {
	return s.db.Session(ctx).Migrator().HasTable(table)
}

// supplierTable derives the per-supplier table name. Supplier ids come from
// request paths, so everything outside [a-z0-9_] is folded to underscores
// before the name reaches SQL.
func supplierTable(supplierID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(supplierID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	id := b.String()
	if id == "" {
		id = "unknown"
	}
	return "supplier_" + id + "_prices"
}

var _ pricelist.Store = (*PriceStore)(nil)
