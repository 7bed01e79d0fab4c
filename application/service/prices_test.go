package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/severstroy/matcat/application/service"
	"github.com/severstroy/matcat/domain/fault"
	"github.com/severstroy/matcat/infrastructure/persistence"
	"github.com/severstroy/matcat/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPriceService(t *testing.T) *service.PriceService {
	t.Helper()
	return service.NewPriceService(persistence.NewPriceStore(testdb.New(t)), testLogger())
}

func TestPriceUploadCSV(t *testing.T) {
	svc := newPriceService(t)
	ctx := context.Background()

	csv := "Наименование,Ед.изм,Цена\n" +
		"Кирпич красный,шт,\"25,50\"\n" +
		",шт,\"10,00\"\n" +
		"Цемент М500,кг,\"8,90\"\n"
	result, err := svc.Upload(ctx, "sup-1", "", "prices.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 1, result.Rejected)
	assert.NotEmpty(t, result.PricelistID)
	require.Len(t, result.Reports, 3)
	assert.False(t, result.Reports[1].Accepted())

	rows, total, err := svc.List(ctx, "sup-1", "", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	assert.InDelta(t, 25.50, rows[0].Price(), 1e-9)
}

func TestPriceUploadEachGetsOwnPricelistID(t *testing.T) {
	svc := newPriceService(t)
	ctx := context.Background()
	csv := "name,unit,price\nКирпич,шт,\"10,00\"\n"

	first, err := svc.Upload(ctx, "sup-1", "", "a.csv", strings.NewReader(csv))
	require.NoError(t, err)
	second, err := svc.Upload(ctx, "sup-1", "", "b.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.NotEqual(t, first.PricelistID, second.PricelistID)

	_, total, err := svc.List(ctx, "sup-1", "", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total, "uploads accumulate per supplier")

	_, scoped, err := svc.List(ctx, "sup-1", first.PricelistID, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), scoped)
}

func TestPriceLatestScopedToNewestUpload(t *testing.T) {
	svc := newPriceService(t)
	ctx := context.Background()

	old := "name,unit,price\nКирпич,шт,\"10,00\"\nЦемент М400,кг,\"5,00\"\n"
	first, err := svc.Upload(ctx, "sup-1", "", "old.csv", strings.NewReader(old))
	require.NoError(t, err)

	fresh := "name,unit,price\nЦемент М500,кг,\"8,90\"\n"
	second, err := svc.Upload(ctx, "sup-1", "", "fresh.csv", strings.NewReader(fresh))
	require.NoError(t, err)

	pricelistID, rows, total, err := svc.Latest(ctx, "sup-1", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, second.PricelistID, pricelistID)
	assert.NotEqual(t, first.PricelistID, pricelistID)
	assert.Equal(t, int64(1), total, "older uploads stay out of the latest view")
	require.Len(t, rows, 1)
	assert.Equal(t, "Цемент М500", rows[0].RawName())
}

func TestPriceLatestEmptyForUnknownSupplier(t *testing.T) {
	svc := newPriceService(t)
	pricelistID, rows, total, err := svc.Latest(context.Background(), "nobody", 100, 0)
	require.NoError(t, err)
	assert.Empty(t, pricelistID)
	assert.Empty(t, rows)
	assert.Zero(t, total)
}

func TestPriceUploadExplicitPricelistIDReplaces(t *testing.T) {
	svc := newPriceService(t)
	ctx := context.Background()

	csv := "name,unit,price\nКирпич,шт,\"10,00\"\nЦемент М400,кг,\"5,00\"\n"
	_, err := svc.Upload(ctx, "sup-1", "pl-1", "a.csv", strings.NewReader(csv))
	require.NoError(t, err)

	replacement := "name,unit,price\nКирпич облицовочный,шт,\"12,00\"\n"
	result, err := svc.Upload(ctx, "sup-1", "pl-1", "b.csv", strings.NewReader(replacement))
	require.NoError(t, err)
	assert.Equal(t, "pl-1", result.PricelistID)

	rows, total, err := svc.List(ctx, "sup-1", "pl-1", 100, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "re-ingesting an id replaces its rows")
	require.Len(t, rows, 1)
	assert.Equal(t, "Кирпич облицовочный", rows[0].RawName())
}

func TestPriceUploadRejectsUnsupportedFormat(t *testing.T) {
	svc := newPriceService(t)
	_, err := svc.Upload(context.Background(), "sup-1", "", "prices.pdf", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestPriceUploadAllRowsRejected(t *testing.T) {
	svc := newPriceService(t)
	csv := "name,unit,price\n,,\n"
	_, err := svc.Upload(context.Background(), "sup-1", "", "prices.csv", strings.NewReader(csv))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestPriceUploadRequiresSupplier(t *testing.T) {
	svc := newPriceService(t)
	_, err := svc.Upload(context.Background(), "", "", "prices.csv", strings.NewReader("x"))
	assert.True(t, fault.IsKind(err, fault.Validation))
}

func TestPriceDeleteSupplier(t *testing.T) {
	svc := newPriceService(t)
	ctx := context.Background()
	csv := "name,unit,price\nКирпич,шт,\"10,00\"\n"
	_, err := svc.Upload(ctx, "sup-1", "", "a.csv", strings.NewReader(csv))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSupplier(ctx, "sup-1"))
	rows, total, err := svc.List(ctx, "sup-1", "", 100, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, total)
}
