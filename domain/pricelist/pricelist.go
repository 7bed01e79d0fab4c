// Package pricelist defines supplier price lists and their store contract.
package pricelist

import (
	"time"

	"github.com/severstroy/matcat/domain/fault"
)

// SourceFormat identifies the uploaded file format.
type SourceFormat string

// SourceFormat values.
const (
	FormatCSV  SourceFormat = "csv"
	FormatXLSX SourceFormat = "xlsx"
)

// Row is one supplier price row, stored verbatim per upload.
type Row struct {
	materialRef string
	rawName     string
	unit        string
	price       float64
	description string
}

// NewRow creates a Row.
func NewRow(materialRef, rawName, unit string, price float64, description string) Row {
	return Row{
		materialRef: materialRef,
		rawName:     rawName,
		unit:        unit,
		price:       price,
		description: description,
	}
}

// MaterialRef returns the optional reference to a catalog material.
func (r Row) MaterialRef() string { return r.materialRef }

// RawName returns the supplier's material name.
func (r Row) RawName() string { return r.rawName }

// Unit returns the supplier's unit.
func (r Row) Unit() string { return r.unit }

// Price returns the supplier price.
func (r Row) Price() float64 { return r.price }

// Description returns the optional description column.
func (r Row) Description() string { return r.description }

// Validate checks the required columns.
func (r Row) Validate() error {
	fields := map[string]string{}
	if r.rawName == "" {
		fields["name"] = "required"
	}
	if r.unit == "" {
		fields["unit"] = "required"
	}
	if len(fields) > 0 {
		return fault.NewValidation("invalid price row", fields)
	}
	return nil
}

// PriceList is an immutable upload: a supplier, a generated pricelist id,
// and the accepted rows. Re-ingesting the same file produces a new
// pricelist id and never alters previously stored rows.
type PriceList struct {
	supplierID  string
	pricelistID string
	uploadedAt  time.Time
	rows        []Row
	format      SourceFormat
}

// New creates a PriceList stamped with the upload time.
func New(supplierID, pricelistID string, rows []Row, format SourceFormat) PriceList {
	return PriceList{
		supplierID:  supplierID,
		pricelistID: pricelistID,
		uploadedAt:  time.Now().UTC(),
		rows:        append([]Row(nil), rows...),
		format:      format,
	}
}

// Restore rebuilds a PriceList from persisted state.
func Restore(supplierID, pricelistID string, uploadedAt time.Time, rows []Row, format SourceFormat) PriceList {
	return PriceList{
		supplierID:  supplierID,
		pricelistID: pricelistID,
		uploadedAt:  uploadedAt,
		rows:        append([]Row(nil), rows...),
		format:      format,
	}
}

// SupplierID returns the supplier scope.
func (p PriceList) SupplierID() string { return p.supplierID }

// PricelistID returns the upload id.
func (p PriceList) PricelistID() string { return p.pricelistID }

// UploadedAt returns the upload timestamp.
func (p PriceList) UploadedAt() time.Time { return p.uploadedAt }

// Rows returns the accepted rows.
func (p PriceList) Rows() []Row { return append([]Row(nil), p.rows...) }

// Format returns the source format.
func (p PriceList) Format() SourceFormat { return p.format }

// RowReport is the per-row outcome of an ingest: rejected rows carry the
// reason, accepted rows the index only.
type RowReport struct {
	index    int
	accepted bool
	reason   string
}

// NewRowReport creates a RowReport.
func NewRowReport(index int, accepted bool, reason string) RowReport {
	return RowReport{index: index, accepted: accepted, reason: reason}
}

// Index returns the zero-based source row index (header excluded).
func (r RowReport) Index() int { return r.index }

// Accepted reports whether the row was stored.
func (r RowReport) Accepted() bool { return r.accepted }

// Reason returns the rejection reason, empty when accepted.
func (r RowReport) Reason() string { return r.reason }
