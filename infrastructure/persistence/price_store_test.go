package persistence_test

import (
	"context"
	"testing"

	"github.com/severstroy/matcat/domain/pricelist"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPriceList(supplierID, pricelistID string, rows ...pricelist.Row) pricelist.PriceList {
	return pricelist.New(supplierID, pricelistID, rows, pricelist.FormatCSV)
}

func TestPriceStoreSaveAndList(t *testing.T) {
	store := persistence.NewPriceStore(testdb.New(t))
	ctx := context.Background()

	p := newPriceList("acme", "pl-1",
		pricelist.NewRow("mat-1", "Кирпич красный", "шт", 25.50, ""),
		pricelist.NewRow("mat-2", "Цемент М500", "кг", 12.00, "мешок 50 кг"),
	)
	require.NoError(t, store.Save(ctx, p))

	rows, err := store.List(ctx, "acme", "pl-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Кирпич красный", rows[0].RawName())
	assert.InDelta(t, 25.50, rows[0].Price(), 1e-9)

	count, err := store.Count(ctx, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPriceStoreReingestReplacesPricelist(t *testing.T) {
	store := persistence.NewPriceStore(testdb.New(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newPriceList("acme", "pl-1",
		pricelist.NewRow("mat-1", "Кирпич", "шт", 25, ""),
		pricelist.NewRow("mat-2", "Цемент", "кг", 12, ""),
	)))
	require.NoError(t, store.Save(ctx, newPriceList("acme", "pl-1",
		pricelist.NewRow("mat-1", "Кирпич", "шт", 27, ""),
	)))

	rows, err := store.List(ctx, "acme", "pl-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1, "re-ingest replaces the upload")
	assert.InDelta(t, 27, rows[0].Price(), 1e-9)
}

func TestPriceStoreIsolatesSuppliers(t *testing.T) {
	store := persistence.NewPriceStore(testdb.New(t))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newPriceList("acme", "pl-1",
		pricelist.NewRow("mat-1", "Кирпич", "шт", 25, ""))))
	require.NoError(t, store.Save(ctx, newPriceList("globex", "pl-1",
		pricelist.NewRow("mat-9", "Доска", "м3", 90, ""))))

	acme, err := store.Count(ctx, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), acme)

	require.NoError(t, store.DeleteSupplier(ctx, "acme"))

	gone, err := store.Count(ctx, "acme", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), gone)

	kept, err := store.Count(ctx, "globex", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), kept, "other suppliers untouched")
}

func TestPriceStoreUnknownSupplier(t *testing.T) {
	store := persistence.NewPriceStore(testdb.New(t))
	ctx := context.Background()

	rows, err := store.List(ctx, "nobody", "", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, store.DeleteSupplier(ctx, "nobody"))
}

func TestPriceStoreSanitizesSupplierID(t *testing.T) {
	store := persistence.NewPriceStore(testdb.New(t))
	ctx := context.Background()

	// hostile ids must fold into a plain table name
	require.NoError(t, store.Save(ctx, newPriceList(`acme"; DROP TABLE materials; --`, "pl-1",
		pricelist.NewRow("mat-1", "Кирпич", "шт", 25, ""))))

	count, err := store.Count(ctx, `acme"; DROP TABLE materials; --`, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
