package service

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/domain/pricelist"
	"github.com/severstroy/matcat/infrastructure/ingest"
	"github.com/severstroy/matcat/internal/log"
)

// UploadResult summarizes one price file ingest.
type UploadResult struct {
	SupplierID  string
	PricelistID string
	Accepted    int
	Rejected    int
	Reports     []pricelist.RowReport
}

// PriceService ingests supplier price files. Each upload gets its own
// pricelist id; re-ingesting the same id replaces its rows while other
// uploads of the supplier stay intact.
type PriceService struct {
	store  pricelist.Store
	logger *log.Logger
}

// NewPriceService creates a PriceService.
func NewPriceService(store pricelist.Store, logger *log.Logger) *PriceService {
	return &PriceService{store: store, logger: logger}
}

// Upload parses the file, persists accepted rows, and returns the per-row
// report. A file where no row survives is rejected outright. An empty
// pricelistID gets a fresh id; supplying an existing id replaces that
// upload's rows.
func (s *PriceService) Upload(ctx context.Context, supplierID, pricelistID, filename string, r io.Reader) (UploadResult, error) {
	if supplierID == "" {
		return UploadResult{}, fault.NewValidation("invalid upload",
			map[string]string{"supplier_id": "must not be empty"})
	}
	reader, err := ingest.ForFile(filename)
	if err != nil {
		return UploadResult{}, err
	}
	parsed, err := reader.Read(r)
	if err != nil {
		return UploadResult{}, err
	}
	if parsed.Accepted() == 0 {
		return UploadResult{}, fault.NewValidation("no valid rows in file",
			map[string]string{"file": "every row was rejected"})
	}

	if pricelistID == "" {
		pricelistID = uuid.NewString()
	}
	pl := pricelist.New(supplierID, pricelistID, parsed.Rows, reader.Format())
	if err := s.store.Save(ctx, pl); err != nil {
		return UploadResult{}, err
	}

	s.logger.InfoContext(ctx, "price list ingested",
		"supplier_id", supplierID,
		"pricelist_id", pricelistID,
		"accepted", parsed.Accepted(),
		"rejected", parsed.Rejected())
	return UploadResult{
		SupplierID:  supplierID,
		PricelistID: pricelistID,
		Accepted:    parsed.Accepted(),
		Rejected:    parsed.Rejected(),
		Reports:     parsed.Reports,
	}, nil
}

// List returns the stored rows for a supplier scope.
func (s *PriceService) List(ctx context.Context, supplierID, pricelistID string, limit, offset int) ([]pricelist.Row, int64, error) {
	if supplierID == "" {
		return nil, 0, fault.NewValidation("invalid request",
			map[string]string{"supplier_id": "must not be empty"})
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.store.List(ctx, supplierID, pricelistID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Count(ctx, supplierID, pricelistID)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Latest returns the rows of the supplier's most recent upload along
// with its pricelist id. A supplier with no uploads yields an empty id
// and no rows.
func (s *PriceService) Latest(ctx context.Context, supplierID string, limit, offset int) (string, []pricelist.Row, int64, error) {
	if supplierID == "" {
		return "", nil, 0, fault.NewValidation("invalid request",
			map[string]string{"supplier_id": "must not be empty"})
	}
	pricelistID, err := s.store.LatestPricelistID(ctx, supplierID)
	if err != nil {
		return "", nil, 0, err
	}
	if pricelistID == "" {
		return "", nil, 0, nil
	}
	rows, total, err := s.List(ctx, supplierID, pricelistID, limit, offset)
	if err != nil {
		return "", nil, 0, err
	}
	return pricelistID, rows, total, nil
}

// DeleteSupplier removes every upload for a supplier.
func (s *PriceService) DeleteSupplier(ctx context.Context, supplierID string) error {
	if supplierID == "" {
		return fault.NewValidation("invalid request",
			map[string]string{"supplier_id": "must not be empty"})
	}
	return s.store.DeleteSupplier(ctx, supplierID)
}
