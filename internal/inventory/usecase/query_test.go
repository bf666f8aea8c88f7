package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInventoryReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "p1", 10)
	key := model.NewRecordKey("p1", nil)

	rec, err := f.uc.GetInventory(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.StockLevel)

	cached, err := f.cache.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, cached.ID)

	_, err = f.uc.Adjust(ctx, &dto.AdjustInput{ProductID: "p1", Value: 5})
	require.NoError(t, err)

	_, err = f.cache.Get(ctx, key)
	assert.ErrorIs(t, err, inventory.ErrNotFound, "writes invalidate the cached record")

	rec, err = f.uc.GetInventory(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, 15, rec.StockLevel)

	_, err = f.uc.GetInventory(ctx, "missing", nil)
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	_, err = f.uc.GetInventory(ctx, "", nil)
	assert.ErrorIs(t, err, inventory.ErrInvalidInput)
}

func TestGetInventoryNeverCachesAnOlderRead(t *testing.T) {
	ctx := context.Background()
	repo := &interleavingRepo{MemoryRepository: repository.NewMemoryRepository()}
	cache := newFakeCache()
	uc := NewInventoryUseCase(repo, cache, nil, nil, logger.NewNop(), Options{})

	_, err := uc.Adjust(ctx, &dto.AdjustInput{ProductID: "p1", Value: 50})
	require.NoError(t, err)

	// the write commits and invalidates between the read and the cache fill
	repo.setHook(func() {
		_, err := uc.Adjust(ctx, &dto.AdjustInput{ProductID: "p1", Value: -50})
		require.NoError(t, err)
	})
	rec, err := uc.GetInventory(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, 50, rec.StockLevel)

	_, err = cache.Get(ctx, model.NewRecordKey("p1", nil))
	assert.ErrorIs(t, err, inventory.ErrNotFound)

	rec, err = uc.GetInventory(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.StockLevel)

	cached, err := cache.Get(ctx, model.NewRecordKey("p1", nil))
	require.NoError(t, err)
	assert.Equal(t, 0, cached.StockLevel)
}

func TestListInventoryAndSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.uc.SyncFromCatalog(ctx, []dto.CatalogItem{
		{ProductID: "a", Name: "Apple", SKU: "AP-1", Stock: 50, ReorderLevel: 10},
		{ProductID: "b", Name: "Banana", SKU: "BA-1", Stock: 4, ReorderLevel: 10},
		{ProductID: "c", Name: "Cherry", SKU: "CH-1", Stock: 0, ReorderLevel: 5},
	})
	require.NoError(t, err)
	_, err = f.uc.Reserve(ctx, reserveInput("a", 45, "cart-1"))
	require.NoError(t, err)

	records, page, err := f.uc.ListInventory(ctx, &dto.InventoryFilters{PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 1, page.Page)

	records, _, err = f.uc.ListInventory(ctx, &dto.InventoryFilters{Search: "ban"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].ProductID)

	_, page, err = f.uc.ListInventory(ctx, &dto.InventoryFilters{PerPage: 1000})
	require.NoError(t, err)
	assert.Equal(t, dto.MaxPerPage, page.PerPage)

	summary, err := f.uc.StockSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalRecords)
	assert.Equal(t, 1, summary.LowStock)
	assert.Equal(t, 1, summary.OutOfStock)
	assert.Equal(t, 3, summary.NeedsReorder)
	assert.Equal(t, 54, summary.TotalUnits)
	assert.Equal(t, 45, summary.ReservedUnits)
}

func seedHistory(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	f.seed(t, "p1", 50)

	res, err := f.uc.Reserve(ctx, reserveInput("p1", 10, "cart-1"))
	require.NoError(t, err)
	_, err = f.uc.Commit(ctx, res.ID)
	require.NoError(t, err)

	for _, in := range []*dto.AdjustInput{
		{ProductID: "p1", Value: 20, ActionType: "addition"},
		{ProductID: "p1", Value: -5, ActionType: "removal"},
		{ProductID: "p1", Value: 2, ActionType: "return"},
		{ProductID: "p1", Value: -1},
	} {
		_, err := f.uc.Adjust(ctx, in)
		require.NoError(t, err)
	}
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	seedHistory(t, f)

	stats, err := f.uc.Statistics(context.Background(), &dto.MovementFilters{ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, &dto.MovementStatistics{
		TotalAdditions:   20,
		TotalRemovals:    5,
		TotalAdjustments: -1,
		TotalSales:       10,
		TotalReturns:     2,
		TotalSynced:      50,
		TotalReserved:    10,
		TotalReleased:    10,
	}, stats)
}

func TestGetHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedHistory(t, f)

	result, err := f.uc.GetHistory(ctx, &dto.MovementFilters{ProductID: "p1", PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 8, result.Pagination.Total)
	assert.Equal(t, 3, result.Pagination.TotalPages)
	require.Len(t, result.Movements, 3)
	assert.Equal(t, model.ActionSync, result.Movements[0].ActionType)
	assert.Equal(t, "Product p1", result.Movements[0].ProductName)
	assert.Equal(t, "SKU-p1", result.Movements[0].SKU)
	assert.Equal(t, 20, result.Statistics.TotalAdditions)

	result, err = f.uc.GetHistory(ctx, &dto.MovementFilters{ProductID: "p1", ActionType: model.ActionSale})
	require.NoError(t, err)
	require.Len(t, result.Movements, 1)
	assert.Equal(t, -10, result.Movements[0].QuantityChange)

	result, err = f.uc.GetHistory(ctx, &dto.MovementFilters{Newest: true})
	require.NoError(t, err)
	assert.Equal(t, model.ActionAdjustment, result.Movements[0].ActionType)

	_, err = f.uc.GetHistory(ctx, &dto.MovementFilters{ActionType: "teleport"})
	assert.ErrorIs(t, err, inventory.ErrInvalidInput)

	from := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err = f.uc.GetHistory(ctx, &dto.MovementFilters{DateFrom: &from, DateTo: &to})
	assert.ErrorIs(t, err, inventory.ErrInvalidInput)
}

func TestReplayMatchesRecord(t *testing.T) {
	f := newFixture(t)
	seedHistory(t, f)
	rec := f.record(t, "p1")

	result, err := f.uc.Replay(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, result.Consistent)
	assert.Equal(t, 56, result.ReplayedStock)
	assert.Equal(t, 0, result.ReplayedReserved)
	assert.Equal(t, 8, result.MovementCount)

	_, err = f.uc.Replay(context.Background(), "missing")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedHistory(t, f)

	t.Run("csv", func(t *testing.T) {
		result, err := f.uc.Export(ctx, &dto.ExportInput{Filters: dto.MovementFilters{ProductID: "p1", PerPage: 2}})
		require.NoError(t, err)
		assert.Equal(t, "text/csv", result.ContentType)
		assert.Equal(t, "inventory-history-20240501-090000.csv", result.Filename)
		assert.Equal(t, 8, result.Rows, "exports ignore pagination")

		rows, err := csv.NewReader(strings.NewReader(string(result.Data))).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 9)
		assert.Equal(t, exportHeader, rows[0])
		assert.Equal(t, "sync", rows[1][6])
		assert.Equal(t, "50", rows[1][8])
		assert.Equal(t, "SKU-p1", rows[1][5])
	})

	t.Run("json", func(t *testing.T) {
		result, err := f.uc.Export(ctx, &dto.ExportInput{
			Filters: dto.MovementFilters{ActionType: model.ActionSale},
			Format:  dto.FormatJSON,
		})
		require.NoError(t, err)
		assert.Equal(t, "application/json", result.ContentType)

		var rows []model.MovementView
		require.NoError(t, json.Unmarshal(result.Data, &rows))
		require.Len(t, rows, 1)
		assert.Equal(t, model.ActionSale, rows[0].ActionType)
		assert.Equal(t, "p1", rows[0].ProductID)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := f.uc.Export(ctx, &dto.ExportInput{Format: "xml"})
		assert.ErrorIs(t, err, inventory.ErrInvalidInput)
	})
}
