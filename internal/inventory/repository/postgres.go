package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	insertRecordQuery = `
        INSERT INTO inventory_records (
            id, product_id, variant_id, product_name, sku,
            stock_level, reserved_quantity, reorder_level, reorder_quantity,
            version, created_at, updated_at
        )
        VALUES (
            :id, :product_id, :variant_id, :product_name, :sku,
            :stock_level, :reserved_quantity, :reorder_level, :reorder_quantity,
            :version, :created_at, :updated_at
        )
        ON CONFLICT (product_id, (COALESCE(variant_id, ''))) DO NOTHING
    `

	updateRecordQuery = `
        UPDATE inventory_records SET
            stock_level = :stock_level,
            reserved_quantity = :reserved_quantity,
            product_name = :product_name,
            sku = :sku,
            reorder_level = :reorder_level,
            reorder_quantity = :reorder_quantity,
            version = :version,
            updated_at = :updated_at
        WHERE id = :id
    `

	insertMovementQuery = `
        INSERT INTO inventory_movements (
            inventory_id, action_type, counter, quantity_change,
            previous_quantity, new_quantity, reason,
            reference_type, reference_id, actor, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id
    `

	insertReservationQuery = `
        INSERT INTO inventory_reservations (
            id, inventory_id, quantity, reference_type, reference_id,
            status, expires_at, created_at, updated_at
        )
        VALUES (
            :id, :inventory_id, :quantity, :reference_type, :reference_id,
            :status, :expires_at, :created_at, :updated_at
        )
    `

	movementViewColumns = `m.*, r.product_id, r.variant_id, r.product_name, r.sku`
	movementJoin        = ` FROM inventory_movements m JOIN inventory_records r ON r.id = m.inventory_id`
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByKey(ctx context.Context, key model.RecordKey) (*model.InventoryRecord, error) {
	var rec model.InventoryRecord
	query := `SELECT * FROM inventory_records WHERE product_id = $1`
	args := []interface{}{key.ProductID}

	if key.VariantID != "" {
		query += ` AND variant_id = $2`
		args = append(args, key.VariantID)
	} else {
		query += ` AND variant_id IS NULL`
	}

	if err := r.DB.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (*model.InventoryRecord, error) {
	var rec model.InventoryRecord
	if err := r.DB.GetContext(ctx, &rec, `SELECT * FROM inventory_records WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *PGRepository) GetOrCreate(ctx context.Context, key model.RecordKey, defaults *model.RecordDefaults) (*model.InventoryRecord, bool, error) {
	existing, err := r.GetByKey(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, inventory.ErrNotFound) {
		return nil, false, err
	}

	if defaults == nil {
		defaults = &model.RecordDefaults{}
	}
	if defaults.StockLevel < 0 {
		return nil, false, inventory.ErrInvalidState
	}

	now := time.Now().UTC()
	rec := model.InventoryRecord{
		ID:              uuid.New().String(),
		ProductID:       key.ProductID,
		VariantID:       key.VariantPtr(),
		ProductName:     defaults.ProductName,
		SKU:             defaults.SKU,
		ReorderLevel:    defaults.ReorderLevel,
		ReorderQuantity: defaults.ReorderQuantity,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var movements []model.Movement
	if defaults.StockLevel != 0 {
		reason := "initial stock"
		m := &model.Mutation{
			InventoryID: rec.ID,
			Deltas:      []model.Delta{{Counter: model.CounterStock, Amount: defaults.StockLevel, Action: model.ActionSync}},
			Reason:      &reason,
		}
		movements = m.Apply(&rec, now)
		rec.Version = 1
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, insertRecordQuery, &rec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create inventory record: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if inserted == 0 {
		// Lost the race against a concurrent creator; theirs wins.
		tx.Rollback()
		existing, err := r.GetByKey(ctx, key)
		return existing, false, err
	}

	if err := insertMovements(ctx, tx, movements); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.InventoryRecord, int, error) {
	items := []model.InventoryRecord{}
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		conditions = append(conditions, "(product_name ILIKE :search OR sku ILIKE :search)")
		args["search"] = "%" + s + "%"
	}
	if f.LowStock {
		conditions = append(conditions, "stock_level > 0 AND stock_level <= reorder_level")
	}
	if f.OutOfStock {
		conditions = append(conditions, "stock_level <= 0")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	if err := r.namedGet(ctx, &count, "SELECT count(*) FROM inventory_records"+whereClause, args); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM inventory_records" + whereClause + " ORDER BY updated_at DESC, id"
	query += limitClause(f.Page, f.PerPage)

	if err := r.namedSelect(ctx, &items, query, args); err != nil {
		return nil, 0, err
	}
	return items, count, nil
}

func (r *PGRepository) ApplyDelta(ctx context.Context, m *model.Mutation) (*model.InventoryRecord, []model.Movement, error) {
	if len(m.Deltas) == 0 && m.Metadata == nil {
		return nil, nil, inventory.ErrInvalidInput
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	// 1. Lock the record row
	var rec model.InventoryRecord
	err = tx.GetContext(ctx, &rec, `SELECT * FROM inventory_records WHERE id = $1 FOR UPDATE`, m.InventoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, inventory.ErrNotFound
		}
		return nil, nil, err
	}
	if m.Version != 0 && rec.Version != m.Version {
		return nil, nil, inventory.ErrConcurrentModification
	}

	now := time.Now().UTC()

	// 2. Settle the reservation while the record is locked
	if s := m.SettleReservation; s != nil {
		res, err := tx.ExecContext(ctx,
			`UPDATE inventory_reservations SET status = $2, updated_at = $3 WHERE id = $1 AND inventory_id = $4 AND status = 'active'`,
			s.ReservationID, s.Status, now, rec.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to settle reservation: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, nil, err
		}
		if n == 0 {
			var status string
			err := tx.GetContext(ctx, &status, `SELECT status FROM inventory_reservations WHERE id = $1`, s.ReservationID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, inventory.ErrReservationNotFound
			}
			if err != nil {
				return nil, nil, err
			}
			return nil, nil, inventory.ErrReservationSettled
		}
	}

	// 3. Apply and validate
	before := rec
	movements := m.Apply(&rec, now)
	if !rec.Valid() {
		return nil, nil, invalidResult(m, &before)
	}

	if _, err := tx.NamedExecContext(ctx, updateRecordQuery, &rec); err != nil {
		return nil, nil, fmt.Errorf("failed to update inventory: %w", err)
	}

	// 4. Log movements
	if err := insertMovements(ctx, tx, movements); err != nil {
		return nil, nil, err
	}

	if m.NewReservation != nil {
		res := *m.NewReservation
		res.InventoryID = rec.ID
		res.CreatedAt = now
		res.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertReservationQuery, &res); err != nil {
			return nil, nil, fmt.Errorf("failed to create reservation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &rec, movements, nil
}

func insertMovements(ctx context.Context, tx *sqlx.Tx, movements []model.Movement) error {
	for i := range movements {
		mv := &movements[i]
		err := tx.QueryRowxContext(ctx, insertMovementQuery,
			mv.InventoryID, mv.ActionType, mv.Counter, mv.QuantityChange,
			mv.PreviousQty, mv.NewQty, mv.Reason,
			mv.ReferenceType, mv.ReferenceID, mv.Actor, mv.CreatedAt,
		).Scan(&mv.ID)
		if err != nil {
			return fmt.Errorf("failed to log movement: %w", err)
		}
	}
	return nil
}

func (r *PGRepository) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var res model.Reservation
	if err := r.DB.GetContext(ctx, &res, `SELECT * FROM inventory_reservations WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, inventory.ErrReservationNotFound
		}
		return nil, err
	}
	return &res, nil
}

func (r *PGRepository) ListActiveReservationsByReference(ctx context.Context, referenceType, referenceID string) ([]model.Reservation, error) {
	items := []model.Reservation{}
	err := r.DB.SelectContext(ctx, &items, `
        SELECT * FROM inventory_reservations
        WHERE reference_type = $1 AND reference_id = $2 AND status = 'active'
        ORDER BY created_at, id
    `, referenceType, referenceID)
	return items, err
}

func (r *PGRepository) ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]model.Reservation, error) {
	items := []model.Reservation{}
	query := `
        SELECT * FROM inventory_reservations
        WHERE status = 'active' AND expires_at <= $1
        ORDER BY expires_at, id
    `
	args := []interface{}{before}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	err := r.DB.SelectContext(ctx, &items, query, args...)
	return items, err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.MovementView, int, error) {
	items := []model.MovementView{}
	var count int

	whereClause, args := movementWhere(f)

	if err := r.namedGet(ctx, &count, "SELECT count(*)"+movementJoin+whereClause, args); err != nil {
		return nil, 0, err
	}

	order := " ORDER BY m.id ASC"
	if f.Newest {
		order = " ORDER BY m.id DESC"
	}
	query := "SELECT " + movementViewColumns + movementJoin + whereClause + order + limitClause(f.Page, f.PerPage)

	if err := r.namedSelect(ctx, &items, query, args); err != nil {
		return nil, 0, err
	}
	return items, count, nil
}

func (r *PGRepository) SumMovementsByAction(ctx context.Context, f *dto.MovementFilters) (map[model.ActionType]int, error) {
	var rows []struct {
		ActionType model.ActionType `db:"action_type"`
		Total      int              `db:"total"`
	}

	whereClause, args := movementWhere(f)
	query := "SELECT m.action_type, COALESCE(SUM(m.quantity_change), 0) AS total" +
		movementJoin + whereClause + " GROUP BY m.action_type"

	if err := r.namedSelect(ctx, &rows, query, args); err != nil {
		return nil, err
	}

	totals := make(map[model.ActionType]int, len(rows))
	for _, row := range rows {
		totals[row.ActionType] = row.Total
	}
	return totals, nil
}

func (r *PGRepository) ListRecordMovements(ctx context.Context, inventoryID string) ([]model.Movement, error) {
	items := []model.Movement{}
	err := r.DB.SelectContext(ctx, &items,
		`SELECT * FROM inventory_movements WHERE inventory_id = $1 ORDER BY id ASC`, inventoryID)
	return items, err
}

func movementWhere(f *dto.MovementFilters) (string, map[string]interface{}) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.InventoryID != "" {
		conditions = append(conditions, "m.inventory_id = :inventory_id")
		args["inventory_id"] = f.InventoryID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "r.product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.VariantID != nil {
		conditions = append(conditions, "r.variant_id = :variant_id")
		args["variant_id"] = *f.VariantID
	}
	if f.ActionType != "" {
		conditions = append(conditions, "m.action_type = :action_type")
		args["action_type"] = string(f.ActionType)
	}
	if f.DateFrom != nil {
		conditions = append(conditions, "m.created_at >= :date_from")
		args["date_from"] = *f.DateFrom
	}
	if f.DateTo != nil {
		conditions = append(conditions, "m.created_at <= :date_to")
		args["date_to"] = *f.DateTo
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		conditions = append(conditions, "(r.product_name ILIKE :search OR r.sku ILIKE :search)")
		args["search"] = "%" + s + "%"
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func limitClause(page, perPage int) string {
	if perPage <= 0 {
		return ""
	}
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", perPage, (page-1)*perPage)
}

func (r *PGRepository) namedGet(ctx context.Context, dest interface{}, query string, args map[string]interface{}) error {
	q, a, err := sqlx.Named(query, args)
	if err != nil {
		return err
	}
	return r.DB.GetContext(ctx, dest, r.DB.Rebind(q), a...)
}

func (r *PGRepository) namedSelect(ctx context.Context, dest interface{}, query string, args map[string]interface{}) error {
	q, a, err := sqlx.Named(query, args)
	if err != nil {
		return err
	}
	return r.DB.SelectContext(ctx, dest, r.DB.Rebind(q), a...)
}
