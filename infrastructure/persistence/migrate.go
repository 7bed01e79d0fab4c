package persistence

import (
	"context"
	"fmt"

	"github.com/severstroy/matcat/internal/database"
)

// AutoMigrate creates the relational schema. On SQLite this includes the
// materials table with its JSON embedding column; on Postgres the materials
// table carries a native vector column and is created by MigratePgVector
// instead.
func AutoMigrate(db database.Database) error {
	g := db.Session(context.Background())

	models := []any{
		&JobRow{},
		&JobItemRow{},
		&PriceRow{},
		&AnalyticsRow{},
		&ReconciliationEventRow{},
		&CatalogRow{},
	}
	if db.IsSQLite() {
		models = append([]any{&MaterialRow{}}, models...)
	}
	if err := g.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	for _, table := range []string{"colors", "units"} {
		if err := g.Table(table).AutoMigrate(&ReferenceRow{}); err != nil {
			return fmt.Errorf("auto migrate %s: %w", table, err)
		}
	}
	return nil
}

// MigratePgVector provisions the pgvector extension and the materials table
// with an embedding column of the configured dimension, then verifies the
// live column dimension so a model swap cannot silently corrupt distances.
func MigratePgVector(ctx context.Context, db database.Database, dimension int) error {
	if !db.IsPostgres() {
		return nil
	}
	if dimension <= 0 {
		return fmt.Errorf("migrate pgvector: invalid dimension %d", dimension)
	}
	g := db.Session(ctx)

	if err := g.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS materials (
		id TEXT PRIMARY KEY,
		name VARCHAR(500) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		use_category TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		sku TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		embedding VECTOR(%d)
	)`, dimension)
	if err := g.Exec(ddl).Error; err != nil {
		return fmt.Errorf("create materials table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_materials_unit ON materials (unit)",
		"CREATE INDEX IF NOT EXISTS idx_materials_use_category ON materials (use_category)",
		"CREATE INDEX IF NOT EXISTS idx_materials_updated_at ON materials (updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_materials_embedding ON materials USING hnsw (embedding vector_cosine_ops)",
	}
	for _, idx := range indexes {
		if err := g.Exec(idx).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if err := g.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
		return fmt.Errorf("create pg_trgm extension: %w", err)
	}

	return CheckVectorDimension(ctx, db, "materials", "embedding", dimension)
}

// CheckVectorDimension compares the declared dimension of a vector column
// against the configured one. pg_attribute stores the dimension in atttypmod
// for vector-typed columns.
func CheckVectorDimension(ctx context.Context, db database.Database, table, column string, want int) error {
	if !db.IsPostgres() {
		return nil
	}
	var got int
	err := db.Session(ctx).Raw(`
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = ? AND a.attname = ?`, table, column).Scan(&got).Error
	if err != nil {
		return fmt.Errorf("check vector dimension: %w", err)
	}
	if got != want {
		return fmt.Errorf("vector column %s.%s has dimension %d, configured %d", table, column, got, want)
	}
	return nil
}
