package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/pricelist"
)

// CSVReader parses UTF-8 comma-separated files with a header row.
type CSVReader struct{}

// NewCSVReader creates a CSVReader.
func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// Format returns the source format tag.
func (c *CSVReader) Format() pricelist.SourceFormat { return pricelist.FormatCSV }

// Read parses the file. Header errors fail the upload; row errors are
// reported per row.
func (c *CSVReader) Read(r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, fault.NewValidation("price file is empty", nil)
		}
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Reports = append(result.Reports,
				pricelist.NewRowReport(rowNum, false, "malformed csv record"))
			continue
		}
		row, report := buildRow(rowNum, record, idx)
		result.Reports = append(result.Reports, report)
		if report.Accepted() {
			result.Rows = append(result.Rows, row)
		}
	}
	return result, nil
}

// buildRow validates one record and converts it to a pricelist row.
func buildRow(rowNum int, record []string, idx map[string]int) (pricelist.Row, pricelist.RowReport) {
	name := cell(record, idx, "name")
	unit := cell(record, idx, "unit")

	price, err := parsePrice(cell(record, idx, "price"))
	if err != nil {
		return pricelist.Row{}, pricelist.NewRowReport(rowNum, false, err.Error())
	}

	ref := cell(record, idx, "material_ref")
	if ref == "" {
		ref = cell(record, idx, "sku")
	}

	row := pricelist.NewRow(ref, name, unit, price, cell(record, idx, "description"))
	if err := row.Validate(); err != nil {
		var f *fault.Fault
		if errors.As(err, &f) {
			return pricelist.Row{}, pricelist.NewRowReport(rowNum, false, f.Message())
		}
		return pricelist.Row{}, pricelist.NewRowReport(rowNum, false, err.Error())
	}
	return row, pricelist.NewRowReport(rowNum, true, "")
}

// parsePrice accepts both dot and comma decimal separators. An empty cell
// is a zero price, which is valid.
func parsePrice(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	normalized := strings.ReplaceAll(strings.ReplaceAll(s, " ", ""), ",", ".")
	price, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q", s)
	}
	if price < 0 {
		return 0, fmt.Errorf("negative price %q", s)
	}
	return price, nil
}

var _ Reader = (*CSVReader)(nil)
