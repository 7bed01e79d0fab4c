package ingest

import (
	"fmt"
	"io"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/pricelist"
	"github.com/xuri/excelize/v2"
)

// XLSXReader parses the first sheet of an Excel workbook with a header row.
type XLSXReader struct{}

// NewXLSXReader creates an XLSXReader.
func NewXLSXReader() *XLSXReader {
	return &XLSXReader{}
}

// Format returns the source format tag.
func (x *XLSXReader) Format() pricelist.SourceFormat { return pricelist.FormatXLSX }

// Read parses the workbook. Header errors fail the upload; row errors are
// reported per row.
func (x *XLSXReader) Read(r io.Reader) (Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Result{}, fault.NewValidation("unreadable xlsx file", map[string]string{
			"file": err.Error(),
		})
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, fault.NewValidation("xlsx workbook has no sheets", nil)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Result{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Result{}, fault.NewValidation("price file is empty", nil)
	}

	idx, err := columnIndex(rows[0])
	if err != nil {
		return Result{}, err
	}

	var result Result
	for rowNum, record := range rows[1:] {
		row, report := buildRow(rowNum+1, record, idx)
		result.Reports = append(result.Reports, report)
		if report.Accepted() {
			result.Rows = append(result.Rows, row)
		}
	}
	return result, nil
}

var _ Reader = (*XLSXReader)(nil)
