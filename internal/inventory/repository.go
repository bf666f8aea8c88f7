package inventory

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type Repository interface {
	// Inventory records
	GetByKey(ctx context.Context, key model.RecordKey) (*model.InventoryRecord, error)
	GetByID(ctx context.Context, id string) (*model.InventoryRecord, error)
	// GetOrCreate returns the record for key, creating it from defaults when absent.
	// A non-zero defaults.StockLevel is recorded as a sync movement in the same transaction.
	GetOrCreate(ctx context.Context, key model.RecordKey, defaults *model.RecordDefaults) (*model.InventoryRecord, bool, error)
	FindAll(ctx context.Context, filters *dto.InventoryFilters) ([]model.InventoryRecord, int, error)

	// ApplyDelta is the only counter mutation. It validates the resulting counters,
	// writes them and appends one movement per delta atomically.
	ApplyDelta(ctx context.Context, m *model.Mutation) (*model.InventoryRecord, []model.Movement, error)

	// Reservations
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	ListActiveReservationsByReference(ctx context.Context, referenceType, referenceID string) ([]model.Reservation, error)
	ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]model.Reservation, error)

	// Movements / Audit
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.MovementView, int, error)
	SumMovementsByAction(ctx context.Context, filters *dto.MovementFilters) (map[model.ActionType]int, error)
	ListRecordMovements(ctx context.Context, inventoryID string) ([]model.Movement, error)
}

// RecordCache holds inventory records keyed by product/variant. Every write invalidates its key
// with the version it produced; Set must never replace a newer version or invalidation.
type RecordCache interface {
	Get(ctx context.Context, key model.RecordKey) (*model.InventoryRecord, error)
	Set(ctx context.Context, rec *model.InventoryRecord) error
	Invalidate(ctx context.Context, key model.RecordKey, version int64) error
}

type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

// EventPublisher announces committed movements to other services.
type EventPublisher interface {
	PublishMovements(ctx context.Context, rec *model.InventoryRecord, movements []model.Movement) error
}
