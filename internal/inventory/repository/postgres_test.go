package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordColumns = []string{
	"id", "product_id", "variant_id", "product_name", "sku",
	"stock_level", "reserved_quantity", "reorder_level", "reorder_quantity",
	"version", "created_at", "updated_at",
}

func newMockRepo(t *testing.T) (*PGRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPGRepository(sqlx.NewDb(db, "postgres")), mock
}

func recordRow(id string, stock, reserved int, version int64) *sqlmock.Rows {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(recordColumns).
		AddRow(id, "p1", nil, "Widget", "W-1", stock, reserved, 5, 10, version, now, now)
}

func TestPGGetByKey(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT \* FROM inventory_records WHERE product_id = \$1 AND variant_id IS NULL`).
		WithArgs("p1").
		WillReturnRows(recordRow("inv-1", 20, 5, 3))

	rec, err := repo.GetByKey(ctx, model.NewRecordKey("p1", nil))
	require.NoError(t, err)
	assert.Equal(t, "inv-1", rec.ID)
	assert.Equal(t, 15, rec.AvailableQuantity())
	assert.Nil(t, rec.VariantID)

	red := "red"
	mock.ExpectQuery(`SELECT \* FROM inventory_records WHERE product_id = \$1 AND variant_id = \$2`).
		WithArgs("p1", "red").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err = repo.GetByKey(ctx, model.NewRecordKey("p1", &red))
	assert.ErrorIs(t, err, inventory.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGGetOrCreateInsertsRecordAndInitialMovement(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM inventory_records WHERE product_id = \$1`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(recordColumns))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO inventory_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO inventory_movements`).
		WithArgs(sqlmock.AnyArg(), model.ActionSync, model.CounterStock, 12, 0, 12,
			sqlmock.AnyArg(), nil, nil, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	rec, created, err := repo.GetOrCreate(context.Background(), model.NewRecordKey("p1", nil), &model.RecordDefaults{
		ProductName: "Widget",
		StockLevel:  12,
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 12, rec.StockLevel)
	assert.Equal(t, int64(1), rec.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGGetOrCreateLosesRace(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT \* FROM inventory_records`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(recordColumns))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO inventory_records`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery(`SELECT \* FROM inventory_records`).
		WithArgs("p1").
		WillReturnRows(recordRow("inv-winner", 7, 0, 1))

	rec, created, err := repo.GetOrCreate(context.Background(), model.NewRecordKey("p1", nil), nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "inv-winner", rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGApplyDelta(t *testing.T) {
	ctx := context.Background()

	t.Run("commits counters and movement together", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM inventory_records WHERE id = \$1 FOR UPDATE`).
			WithArgs("inv-1").
			WillReturnRows(recordRow("inv-1", 10, 0, 2))
		mock.ExpectExec(`UPDATE inventory_records SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO inventory_movements`).
			WithArgs("inv-1", model.ActionAdjustment, model.CounterStock, 5, 10, 15,
				nil, nil, nil, nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
		mock.ExpectCommit()

		rec, movements, err := repo.ApplyDelta(ctx, &model.Mutation{
			InventoryID: "inv-1",
			Version:     2,
			Deltas:      []model.Delta{{Counter: model.CounterStock, Amount: 5, Action: model.ActionAdjustment}},
		})
		require.NoError(t, err)
		assert.Equal(t, 15, rec.StockLevel)
		assert.Equal(t, int64(3), rec.Version)
		require.Len(t, movements, 1)
		assert.Equal(t, int64(42), movements[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version rolls back", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs("inv-1").
			WillReturnRows(recordRow("inv-1", 10, 0, 3))
		mock.ExpectRollback()

		_, _, err := repo.ApplyDelta(ctx, &model.Mutation{
			InventoryID: "inv-1",
			Version:     2,
			Deltas:      []model.Delta{{Counter: model.CounterStock, Amount: 1, Action: model.ActionAddition}},
		})
		assert.ErrorIs(t, err, inventory.ErrConcurrentModification)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invariant violation rolls back", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs("inv-1").
			WillReturnRows(recordRow("inv-1", 50, 10, 1))
		mock.ExpectRollback()

		_, _, err := repo.ApplyDelta(ctx, &model.Mutation{
			InventoryID: "inv-1",
			Deltas:      []model.Delta{{Counter: model.CounterStock, Amount: -45, Action: model.ActionAdjustment}},
		})
		assert.ErrorIs(t, err, inventory.ErrInvalidState)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("settled reservation is reported", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs("inv-1").
			WillReturnRows(recordRow("inv-1", 10, 4, 1))
		mock.ExpectExec(`UPDATE inventory_reservations SET status`).
			WithArgs("res-1", model.ReservationReleased, sqlmock.AnyArg(), "inv-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT status FROM inventory_reservations`).
			WithArgs("res-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("released"))
		mock.ExpectRollback()

		_, _, err := repo.ApplyDelta(ctx, &model.Mutation{
			InventoryID:       "inv-1",
			Deltas:            []model.Delta{{Counter: model.CounterReserved, Amount: -4, Action: model.ActionRelease}},
			SettleReservation: &model.ReservationSettlement{ReservationID: "res-1", Status: model.ReservationReleased},
		})
		assert.ErrorIs(t, err, inventory.ErrReservationSettled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("new reservation is inserted in the same transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs("inv-1").
			WillReturnRows(recordRow("inv-1", 10, 0, 1))
		mock.ExpectExec(`UPDATE inventory_records SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO inventory_movements`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
		mock.ExpectExec(`INSERT INTO inventory_reservations`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		rec, _, err := repo.ApplyDelta(ctx, &model.Mutation{
			InventoryID: "inv-1",
			Version:     1,
			Deltas:      []model.Delta{{Counter: model.CounterReserved, Amount: 3, Action: model.ActionReservation}},
			NewReservation: &model.Reservation{
				ID:        "res-9",
				Quantity:  3,
				Status:    model.ReservationActive,
				ExpiresAt: time.Now().Add(time.Hour),
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 3, rec.ReservedQuantity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPGListMovements(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT count\(\*\) FROM inventory_movements m JOIN inventory_records r ON r.id = m.inventory_id WHERE r.product_id = \$1 AND m.action_type = \$2`).
		WithArgs("p1", "sale").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT m.\*, r.product_id, r.variant_id, r.product_name, r.sku FROM .* ORDER BY m.id DESC LIMIT 20 OFFSET 20`).
		WithArgs("p1", "sale").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "inventory_id", "action_type", "counter", "quantity_change",
			"previous_quantity", "new_quantity", "reason", "reference_type", "reference_id", "actor", "created_at",
			"product_id", "variant_id", "product_name", "sku",
		}).AddRow(int64(5), "inv-1", "sale", "stock_level", -2, 10, 8, nil, "order", "o-1", nil, now, "p1", nil, "Widget", "W-1"))

	items, total, err := repo.ListMovements(context.Background(), &dto.MovementFilters{
		ProductID:  "p1",
		ActionType: model.ActionSale,
		Newest:     true,
		Page:       2,
		PerPage:    20,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Widget", items[0].ProductName)
	assert.Equal(t, -2, items[0].QuantityChange)
	require.NotNil(t, items[0].ReferenceID)
	assert.Equal(t, "o-1", *items[0].ReferenceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGSumMovementsByAction(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT m.action_type, COALESCE\(SUM\(m.quantity_change\), 0\) AS total FROM .* GROUP BY m.action_type`).
		WillReturnRows(sqlmock.NewRows([]string{"action_type", "total"}).
			AddRow("addition", 30).
			AddRow("sale", -12))

	totals, err := repo.SumMovementsByAction(context.Background(), &dto.MovementFilters{})
	require.NoError(t, err)
	assert.Equal(t, 30, totals[model.ActionAddition])
	assert.Equal(t, -12, totals[model.ActionSale])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLimitClause(t *testing.T) {
	assert.Equal(t, "", limitClause(1, 0))
	assert.Equal(t, " LIMIT 10 OFFSET 0", limitClause(0, 10))
	assert.Equal(t, " LIMIT 10 OFFSET 20", limitClause(3, 10))
}
