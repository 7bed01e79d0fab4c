// Package persistence implements the vector, SQL, job, price, analytics,
// and reference stores over GORM.
package persistence

import (
	"encoding/json"
	"time"

	"github.com/severstroy/matcat/domain/job"
	"github.com/severstroy/matcat/domain/material"
	"github.com/severstroy/matcat/domain/pricelist"
	"github.com/severstroy/matcat/domain/reference"
)

// MaterialRow is the GORM model for the materials table. The embedding is
// stored as a JSON array on SQLite; the Postgres vector store bypasses
// this model with raw vector-typed SQL.
type MaterialRow struct {
	ID          string    `gorm:"column:id;primaryKey"`
	Name        string    `gorm:"column:name;size:500;index"`
	Description string    `gorm:"column:description"`
	UseCategory string    `gorm:"column:use_category;index"`
	Unit        string    `gorm:"column:unit;index"`
	SKU         string    `gorm:"column:sku;index"`
	CreatedAt   time.Time `gorm:"column:created_at;index"`
	UpdatedAt   time.Time `gorm:"column:updated_at;index"`
	Embedding   string    `gorm:"column:embedding"`
}

// TableName returns the table name.
func (MaterialRow) TableName() string { return "materials" }

// MaterialMapper maps between material.Material and MaterialRow.
type MaterialMapper struct{}

// ToDomain converts a row to a Material.
func (MaterialMapper) ToDomain(e MaterialRow) material.Material {
	return material.Restore(e.ID, e.Name, e.Description, e.UseCategory, e.Unit, e.SKU,
		e.CreatedAt, e.UpdatedAt, decodeVector(e.Embedding))
}

// ToModel converts a Material to a row.
func (MaterialMapper) ToModel(m material.Material) MaterialRow {
	return MaterialRow{
		ID:          m.ID(),
		Name:        m.Name(),
		Description: m.Description(),
		UseCategory: m.UseCategory(),
		Unit:        m.Unit(),
		SKU:         m.SKU(),
		CreatedAt:   m.CreatedAt(),
		UpdatedAt:   m.UpdatedAt(),
		Embedding:   encodeVector(m.Embedding()),
	}
}

// JobRow is the GORM model for processing_jobs.
type JobRow struct {
	RequestID  string    `gorm:"column:request_id;primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	Total      int       `gorm:"column:total"`
	Pending    int       `gorm:"column:pending"`
	Processing int       `gorm:"column:processing"`
	Completed  int       `gorm:"column:completed"`
	Failed     int       `gorm:"column:failed"`
}

// TableName returns the table name.
func (JobRow) TableName() string { return "processing_jobs" }

// JobMapper maps between job.Job and JobRow.
type JobMapper struct{}

// ToDomain converts a row to a Job.
func (JobMapper) ToDomain(e JobRow) job.Job {
	return job.Restore(e.RequestID, e.CreatedAt, e.Total, e.Pending, e.Processing, e.Completed, e.Failed)
}

// ToModel converts a Job to a row.
func (JobMapper) ToModel(j job.Job) JobRow {
	return JobRow{
		RequestID:  j.RequestID(),
		CreatedAt:  j.CreatedAt(),
		Total:      j.Total(),
		Pending:    j.Pending(),
		Processing: j.Processing(),
		Completed:  j.Completed(),
		Failed:     j.Failed(),
	}
}

// JobItemRow is the GORM model for job_items.
type JobItemRow struct {
	RequestID     string    `gorm:"column:request_id;primaryKey;index"`
	MaterialID    string    `gorm:"column:material_id;primaryKey"`
	Seq           int       `gorm:"column:seq"`
	Name          string    `gorm:"column:name"`
	Unit          string    `gorm:"column:unit"`
	Status        string    `gorm:"column:status;index"`
	SKU           string    `gorm:"column:sku"`
	Similarity    float64   `gorm:"column:similarity"`
	ErrMessage    string    `gorm:"column:err_message"`
	Attempts      int       `gorm:"column:attempts"`
	LastAttemptAt time.Time `gorm:"column:last_attempt_at"`
}

// TableName returns the table name.
func (JobItemRow) TableName() string { return "job_items" }

// JobItemMapper maps between job.Item and JobItemRow.
type JobItemMapper struct{}

// ToDomain converts a row to an Item.
func (JobItemMapper) ToDomain(e JobItemRow) job.Item {
	return job.RestoreItem(e.MaterialID, e.Name, e.Unit, job.Status(e.Status),
		e.SKU, e.Similarity, e.ErrMessage, e.Attempts, e.LastAttemptAt)
}

// ToModel converts an Item to a row without request id or sequence; the
// store fills those.
func (JobItemMapper) ToModel(i job.Item) JobItemRow {
	return JobItemRow{
		MaterialID:    i.MaterialID(),
		Name:          i.Name(),
		Unit:          i.Unit(),
		Status:        string(i.Status()),
		SKU:           i.SKU(),
		Similarity:    i.Similarity(),
		ErrMessage:    i.ErrMessage(),
		Attempts:      i.Attempts(),
		LastAttemptAt: i.LastAttemptAt(),
	}
}

// PriceRow is the GORM model for price rows, both the shared price_rows
// table and the per-supplier tables.
type PriceRow struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	SupplierID  string    `gorm:"column:supplier_id;index"`
	PricelistID string    `gorm:"column:pricelist_id;index"`
	MaterialRef string    `gorm:"column:material_ref"`
	RawName     string    `gorm:"column:raw_name"`
	Unit        string    `gorm:"column:unit"`
	Price       float64   `gorm:"column:price"`
	Description string    `gorm:"column:description"`
	UploadedAt  time.Time `gorm:"column:uploaded_at"`
}

// TableName returns the shared table name.
func (PriceRow) TableName() string { return "price_rows" }

// PriceMapper maps between pricelist.Row and PriceRow.
type PriceMapper struct{}

// ToDomain converts a row.
func (PriceMapper) ToDomain(e PriceRow) pricelist.Row {
	return pricelist.NewRow(e.MaterialRef, e.RawName, e.Unit, e.Price, e.Description)
}

// ToModel converts a domain row without supplier scope; the store fills it.
func (PriceMapper) ToModel(r pricelist.Row) PriceRow {
	return PriceRow{
		MaterialRef: r.MaterialRef(),
		RawName:     r.RawName(),
		Unit:        r.Unit(),
		Price:       r.Price(),
		Description: r.Description(),
	}
}

// AnalyticsRow is the GORM model for analytics_daily.
type AnalyticsRow struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Day         string    `gorm:"column:day;index"`
	QueryHash   string    `gorm:"column:query_hash;index"`
	QueryText   string    `gorm:"column:query_text"`
	Mode        string    `gorm:"column:mode"`
	DurationMS  int64     `gorm:"column:duration_ms"`
	ResultCount int       `gorm:"column:result_count"`
	At          time.Time `gorm:"column:at"`
}

// TableName returns the table name.
func (AnalyticsRow) TableName() string { return "analytics_daily" }

// ReconciliationEventRow is the GORM model for the dual-write outbox.
type ReconciliationEventRow struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Op         string    `gorm:"column:op"`
	MaterialID string    `gorm:"column:material_id;index"`
	Payload    string    `gorm:"column:payload"`
	CreatedAt  time.Time `gorm:"column:created_at;index"`
}

// TableName returns the table name.
func (ReconciliationEventRow) TableName() string { return "reconciliation_events" }

// ReferenceRow is the GORM model shared by the colors and units tables.
type ReferenceRow struct {
	Canonical string `gorm:"column:canonical;primaryKey"`
	Aliases   string `gorm:"column:aliases"`
	Embedding string `gorm:"column:embedding"`
}

// ReferenceMapper maps between reference.Entry and ReferenceRow.
type ReferenceMapper struct{}

// ToDomain converts a row.
func (ReferenceMapper) ToDomain(e ReferenceRow) reference.Entry {
	var aliases []string
	_ = json.Unmarshal([]byte(e.Aliases), &aliases)
	return reference.NewEntry(e.Canonical, aliases, decodeVector(e.Embedding))
}

// ToModel converts an entry.
func (ReferenceMapper) ToModel(e reference.Entry) ReferenceRow {
	aliases, _ := json.Marshal(e.Aliases())
	return ReferenceRow{
		Canonical: e.Canonical(),
		Aliases:   string(aliases),
		Embedding: encodeVector(e.Embedding()),
	}
}

// CatalogRow is the GORM model for reference_materials, the SKU catalog.
type CatalogRow struct {
	SKU       string `gorm:"column:sku;primaryKey"`
	Name      string `gorm:"column:name"`
	Unit      string `gorm:"column:unit"`
	Color     string `gorm:"column:color"`
	Embedding string `gorm:"column:embedding"`
}

// TableName returns the table name.
func (CatalogRow) TableName() string { return "reference_materials" }

// CatalogMapper maps between reference.CatalogItem and CatalogRow.
type CatalogMapper struct{}

// ToDomain converts a row.
func (CatalogMapper) ToDomain(e CatalogRow) reference.CatalogItem {
	return reference.NewCatalogItem(e.SKU, e.Name, e.Unit, e.Color, decodeVector(e.Embedding))
}

// ToModel converts an item.
func (CatalogMapper) ToModel(i reference.CatalogItem) CatalogRow {
	return CatalogRow{
		SKU:       i.SKU(),
		Name:      i.Name(),
		Unit:      i.NormalizedUnit(),
		Color:     i.NormalizedColor(),
		Embedding: encodeVector(i.EmbeddingCombined()),
	}
}

func encodeVector(v []float64) string {
	if len(v) == 0 {
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeVector(s string) []float64 {
	if s == "" {
		return nil
	}
	var v []float64
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}
