// Package ingest parses uploaded supplier price files into pricelist rows.
package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/pricelist"
)

// Result pairs the accepted rows with the per-row report. An upload
// succeeds as long as the file itself parses; bad rows are rejected
// individually.
type Result struct {
	Rows    []pricelist.Row
	Reports []pricelist.RowReport
}

// Accepted returns how many rows passed validation.
func (r Result) Accepted() int { return len(r.Rows) }

// Rejected returns how many rows were refused.
func (r Result) Rejected() int { return len(r.Reports) - len(r.Rows) }

// Reader parses one file format into a Result.
type Reader interface {
	Read(r io.Reader) (Result, error)
	Format() pricelist.SourceFormat
}

// ForFile picks a reader by file extension.
func ForFile(filename string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return NewCSVReader(), nil
	case ".xlsx":
		return NewXLSXReader(), nil
	default:
		return nil, fault.NewValidation("unsupported file format", map[string]string{
			"file": fmt.Sprintf("expected .csv or .xlsx, got %q", filepath.Ext(filename)),
		})
	}
}

// Recognized header names, lowercase. Russian aliases cover the headers
// suppliers actually send.
var headerAliases = map[string]string{
	"name":         "name",
	"наименование": "name",
	"материал":     "name",
	"unit":         "unit",
	"ед":           "unit",
	"ед.изм":       "unit",
	"ед. изм.":     "unit",
	"единица":      "unit",
	"price":        "price",
	"цена":         "price",
	"description":  "description",
	"описание":     "description",
	"sku":          "sku",
	"артикул":      "sku",
	"material_ref": "material_ref",
	"код":          "material_ref",
}

// columnIndex maps a header row to canonical column positions. Required
// columns are name and unit.
func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[key]; ok {
			if _, dup := idx[canonical]; !dup {
				idx[canonical] = i
			}
		}
	}
	missing := map[string]string{}
	if _, ok := idx["name"]; !ok {
		missing["name"] = "required column missing"
	}
	if _, ok := idx["unit"]; !ok {
		missing["unit"] = "required column missing"
	}
	if len(missing) > 0 {
		return nil, fault.NewValidation("price file header incomplete", missing)
	}
	return idx, nil
}

func cell(record []string, idx map[string]int, column string) string {
	i, ok := idx[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
