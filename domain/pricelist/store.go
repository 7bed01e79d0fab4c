package pricelist

import "context"

// Store persists price lists. Each supplier's rows live in their own
// table, created on first upload.
type Store interface {
	// Save persists the upload's accepted rows under the supplier scope.
	Save(ctx context.Context, p PriceList) error

	// List returns the rows for a supplier, optionally narrowed to one
	// pricelist id (empty matches all uploads).
	List(ctx context.Context, supplierID, pricelistID string, limit, offset int) ([]Row, error)

	// Count returns the row count for a supplier scope.
	Count(ctx context.Context, supplierID, pricelistID string) (int64, error)

	// LatestPricelistID returns the id of the supplier's most recent
	// upload, empty when the supplier has none.
	LatestPricelistID(ctx context.Context, supplierID string) (string, error)

	// DeleteSupplier removes every upload for a supplier.
	DeleteSupplier(ctx context.Context, supplierID string) error
}
