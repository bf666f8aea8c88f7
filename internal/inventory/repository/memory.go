package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/google/uuid"
)

type memoryEntry struct {
	mu  sync.Mutex
	rec model.InventoryRecord
}

// MemoryRepository keeps the ledger in process. Writes to one record are
// serialized by that record's mutex; different records never contend.
type MemoryRepository struct {
	mu           sync.RWMutex
	entries      map[string]*memoryEntry
	byKey        map[model.RecordKey]string
	reservations map[string]*model.Reservation

	ledgerMu  sync.RWMutex
	movements []model.Movement
	nextID    int64

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries:      make(map[string]*memoryEntry),
		byKey:        make(map[model.RecordKey]string),
		reservations: make(map[string]*model.Reservation),
		now:          time.Now,
	}
}

// WithClock replaces the time source used for timestamps.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.now = now
	return r
}

func (r *MemoryRepository) entry(id string) (*memoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

func (e *memoryEntry) snapshot() *model.InventoryRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.rec
	return &rec
}

func (r *MemoryRepository) GetByKey(ctx context.Context, key model.RecordKey) (*model.InventoryRecord, error) {
	r.mu.RLock()
	id, ok := r.byKey[key]
	r.mu.RUnlock()
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*model.InventoryRecord, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, inventory.ErrNotFound
	}
	return e.snapshot(), nil
}

func (r *MemoryRepository) GetOrCreate(ctx context.Context, key model.RecordKey, defaults *model.RecordDefaults) (*model.InventoryRecord, bool, error) {
	if defaults == nil {
		defaults = &model.RecordDefaults{}
	}
	if defaults.StockLevel < 0 {
		return nil, false, inventory.ErrInvalidState
	}

	r.mu.Lock()
	if id, ok := r.byKey[key]; ok {
		e := r.entries[id]
		r.mu.Unlock()
		return e.snapshot(), false, nil
	}

	now := r.now()
	e := &memoryEntry{rec: model.InventoryRecord{
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
	}}
	// Hold the entry before publishing it so nobody mutates it ahead of the initial movement.
	e.mu.Lock()
	r.entries[e.rec.ID] = e
	r.byKey[key] = e.rec.ID
	r.mu.Unlock()
	defer e.mu.Unlock()

	if defaults.StockLevel != 0 {
		m := &model.Mutation{
			InventoryID: e.rec.ID,
			Deltas:      []model.Delta{{Counter: model.CounterStock, Amount: defaults.StockLevel, Action: model.ActionSync}},
			Reason:      strPtr("initial stock"),
		}
		rec := e.rec
		movements := m.Apply(&rec, now)
		rec.Version = 1
		r.appendMovements(movements)
		e.rec = rec
	}

	rec := e.rec
	return &rec, true, nil
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.InventoryRecord, int, error) {
	r.mu.RLock()
	entries := make([]*memoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	items := []model.InventoryRecord{}
	for _, e := range entries {
		rec := e.snapshot()
		if f.ProductID != "" && rec.ProductID != f.ProductID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rec.ProductName), search) &&
			!strings.Contains(strings.ToLower(rec.SKU), search) {
			continue
		}
		if f.LowStock && !rec.IsLowStock() {
			continue
		}
		if f.OutOfStock && !rec.IsOutOfStock() {
			continue
		}
		items = append(items, *rec)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})

	total := len(items)
	return paginate(items, f.Page, f.PerPage), total, nil
}

func (r *MemoryRepository) ApplyDelta(ctx context.Context, m *model.Mutation) (*model.InventoryRecord, []model.Movement, error) {
	if len(m.Deltas) == 0 && m.Metadata == nil {
		return nil, nil, inventory.ErrInvalidInput
	}

	e, ok := r.entry(m.InventoryID)
	if !ok {
		return nil, nil, inventory.ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if m.Version != 0 && e.rec.Version != m.Version {
		return nil, nil, inventory.ErrConcurrentModification
	}

	var settled *model.Reservation
	if m.SettleReservation != nil {
		r.mu.RLock()
		res, ok := r.reservations[m.SettleReservation.ReservationID]
		r.mu.RUnlock()
		if !ok {
			return nil, nil, inventory.ErrReservationNotFound
		}
		if !res.IsActive() {
			return nil, nil, inventory.ErrReservationSettled
		}
		settled = res
	}

	now := r.now()
	rec := e.rec
	movements := m.Apply(&rec, now)
	if !rec.Valid() {
		return nil, nil, invalidResult(m, &e.rec)
	}

	// Reservation rows belong to their record, so the record lock covers them.
	if settled != nil {
		r.mu.Lock()
		settled.Status = m.SettleReservation.Status
		settled.UpdatedAt = now
		r.mu.Unlock()
	}
	if m.NewReservation != nil {
		res := *m.NewReservation
		res.InventoryID = rec.ID
		res.CreatedAt = now
		res.UpdatedAt = now
		r.mu.Lock()
		r.reservations[res.ID] = &res
		r.mu.Unlock()
	}

	movements = r.appendMovements(movements)
	e.rec = rec

	out := rec
	return &out, movements, nil
}

func (r *MemoryRepository) appendMovements(movements []model.Movement) []model.Movement {
	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()
	for i := range movements {
		r.nextID++
		movements[i].ID = r.nextID
		r.movements = append(r.movements, movements[i])
	}
	return movements
}

func (r *MemoryRepository) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.reservations[id]
	if !ok {
		return nil, inventory.ErrReservationNotFound
	}
	out := *res
	return &out, nil
}

func (r *MemoryRepository) ListActiveReservationsByReference(ctx context.Context, referenceType, referenceID string) ([]model.Reservation, error) {
	return r.filterReservations(func(res *model.Reservation) bool {
		return res.IsActive() && res.ReferenceType == referenceType && res.ReferenceID == referenceID
	}, 0), nil
}

func (r *MemoryRepository) ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]model.Reservation, error) {
	return r.filterReservations(func(res *model.Reservation) bool {
		return res.IsActive() && !res.ExpiresAt.After(before)
	}, limit), nil
}

func (r *MemoryRepository) filterReservations(keep func(*model.Reservation) bool, limit int) []model.Reservation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []model.Reservation{}
	for _, res := range r.reservations {
		if keep(res) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.MovementView, int, error) {
	views := r.matchMovements(f)
	if f.Newest {
		for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
			views[i], views[j] = views[j], views[i]
		}
	}
	total := len(views)
	return paginate(views, f.Page, f.PerPage), total, nil
}

func (r *MemoryRepository) SumMovementsByAction(ctx context.Context, f *dto.MovementFilters) (map[model.ActionType]int, error) {
	totals := make(map[model.ActionType]int)
	for _, v := range r.matchMovements(f) {
		totals[v.ActionType] += v.QuantityChange
	}
	return totals, nil
}

func (r *MemoryRepository) ListRecordMovements(ctx context.Context, inventoryID string) ([]model.Movement, error) {
	r.ledgerMu.RLock()
	defer r.ledgerMu.RUnlock()
	out := []model.Movement{}
	for _, mv := range r.movements {
		if mv.InventoryID == inventoryID {
			out = append(out, mv)
		}
	}
	return out, nil
}

// matchMovements returns the filtered ledger in id order.
func (r *MemoryRepository) matchMovements(f *dto.MovementFilters) []model.MovementView {
	r.ledgerMu.RLock()
	movements := make([]model.Movement, len(r.movements))
	copy(movements, r.movements)
	r.ledgerMu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(f.Search))
	records := make(map[string]*model.InventoryRecord)
	views := []model.MovementView{}
	for _, mv := range movements {
		rec, ok := records[mv.InventoryID]
		if !ok {
			e, found := r.entry(mv.InventoryID)
			if !found {
				continue
			}
			rec = e.snapshot()
			records[mv.InventoryID] = rec
		}

		if f.InventoryID != "" && mv.InventoryID != f.InventoryID {
			continue
		}
		if f.ProductID != "" && rec.ProductID != f.ProductID {
			continue
		}
		if f.VariantID != nil && (rec.VariantID == nil || *rec.VariantID != *f.VariantID) {
			continue
		}
		if f.ActionType != "" && mv.ActionType != f.ActionType {
			continue
		}
		if f.DateFrom != nil && mv.CreatedAt.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && mv.CreatedAt.After(*f.DateTo) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(rec.ProductName), search) &&
			!strings.Contains(strings.ToLower(rec.SKU), search) {
			continue
		}

		views = append(views, model.MovementView{
			Movement:    mv,
			ProductID:   rec.ProductID,
			VariantID:   rec.VariantID,
			ProductName: rec.ProductName,
			SKU:         rec.SKU,
		})
	}
	return views
}

func paginate[T any](items []T, page, perPage int) []T {
	if perPage <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func strPtr(s string) *string {
	return &s
}
