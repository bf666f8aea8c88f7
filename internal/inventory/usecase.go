package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type UseCase interface {
	// Reservations
	Reserve(ctx context.Context, input *dto.ReserveInput) (*model.Reservation, error)
	Release(ctx context.Context, reservationID string) (bool, error)
	Commit(ctx context.Context, reservationID string) (bool, error)
	ReleaseByReference(ctx context.Context, referenceType, referenceID string) (int, error)
	CommitByReference(ctx context.Context, referenceType, referenceID string) (int, error)
	ExpireReservations(ctx context.Context, now time.Time) (*dto.ExpireResult, error)

	// Adjustments
	Adjust(ctx context.Context, input *dto.AdjustInput) (*model.InventoryRecord, error)
	BulkAdjust(ctx context.Context, input *dto.BulkAdjustInput) (*dto.BulkAdjustResult, error)

	// Queries
	GetInventory(ctx context.Context, productID string, variantID *string) (*model.InventoryRecord, error)
	ListInventory(ctx context.Context, filters *dto.InventoryFilters) ([]model.InventoryRecord, *dto.Pagination, error)
	StockSummary(ctx context.Context) (*dto.StockSummary, error)
	GetHistory(ctx context.Context, filters *dto.MovementFilters) (*dto.HistoryResult, error)
	Statistics(ctx context.Context, filters *dto.MovementFilters) (*dto.MovementStatistics, error)
	Replay(ctx context.Context, inventoryID string) (*dto.ReplayResult, error)
	Export(ctx context.Context, input *dto.ExportInput) (*dto.ExportResult, error)

	// Reconciliation
	SyncFromCatalog(ctx context.Context, items []dto.CatalogItem) (*dto.SyncResult, error)
	ReconcileCatalog(ctx context.Context, items []dto.CatalogItem) (*dto.SyncResult, error)
}
