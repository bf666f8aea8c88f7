package model

import "time"

type ActionType string

const (
	ActionAddition    ActionType = "addition"
	ActionRemoval     ActionType = "removal"
	ActionAdjustment  ActionType = "adjustment"
	ActionSale        ActionType = "sale"
	ActionReturn      ActionType = "return"
	ActionReservation ActionType = "reservation"
	ActionRelease     ActionType = "release"
	ActionSync        ActionType = "sync"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionAddition, ActionRemoval, ActionAdjustment, ActionSale,
		ActionReturn, ActionReservation, ActionRelease, ActionSync:
		return true
	}
	return false
}

type Counter string

const (
	CounterStock    Counter = "stock_level"
	CounterReserved Counter = "reserved_quantity"
)

type Movement struct {
	ID             int64      `db:"id" json:"id"`
	InventoryID    string     `db:"inventory_id" json:"inventory_id"`
	ActionType     ActionType `db:"action_type" json:"action_type"`
	Counter        Counter    `db:"counter" json:"counter"`
	QuantityChange int        `db:"quantity_change" json:"quantity_change"`
	PreviousQty    int        `db:"previous_quantity" json:"previous_quantity"`
	NewQty         int        `db:"new_quantity" json:"new_quantity"`
	Reason         *string    `db:"reason" json:"reason,omitempty"`
	ReferenceType  *string    `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID    *string    `db:"reference_id" json:"reference_id,omitempty"`
	Actor          *string    `db:"actor" json:"actor,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// MovementView is a movement joined with the identity of its record.
type MovementView struct {
	Movement
	ProductID   string  `db:"product_id" json:"product_id"`
	VariantID   *string `db:"variant_id" json:"variant_id,omitempty"`
	ProductName string  `db:"product_name" json:"product_name"`
	SKU         string  `db:"sku" json:"sku"`
}

// Delta is one signed change to one counter.
type Delta struct {
	Counter Counter
	Amount  int
	Action  ActionType
}

// Mutation is the unit handed to the store's ApplyDelta. All deltas, their
// movements and the optional reservation transition commit together or not at all.
type Mutation struct {
	InventoryID string
	// Version is the record version the caller computed the deltas from.
	// Zero skips the optimistic check.
	Version       int64
	Deltas        []Delta
	Reason        *string
	ReferenceType *string
	ReferenceID   *string
	Actor         *string
	// Metadata, when set, replaces the record's non-counter fields.
	Metadata *RecordDefaults

	NewReservation    *Reservation
	SettleReservation *ReservationSettlement
}

// Apply runs the deltas against rec in order and returns one movement per delta.
// rec is modified in place; callers work on a copy.
func (m *Mutation) Apply(rec *InventoryRecord, now time.Time) []Movement {
	movements := make([]Movement, 0, len(m.Deltas))
	for _, d := range m.Deltas {
		prev := rec.Counter(d.Counter)
		next := prev + d.Amount
		rec.setCounter(d.Counter, next)
		movements = append(movements, Movement{
			InventoryID:    rec.ID,
			ActionType:     d.Action,
			Counter:        d.Counter,
			QuantityChange: d.Amount,
			PreviousQty:    prev,
			NewQty:         next,
			Reason:         m.Reason,
			ReferenceType:  m.ReferenceType,
			ReferenceID:    m.ReferenceID,
			Actor:          m.Actor,
			CreatedAt:      now,
		})
	}
	if m.Metadata != nil {
		rec.ProductName = m.Metadata.ProductName
		rec.SKU = m.Metadata.SKU
		rec.ReorderLevel = m.Metadata.ReorderLevel
		rec.ReorderQuantity = m.Metadata.ReorderQuantity
	}
	rec.Version++
	rec.UpdatedAt = now
	return movements
}

// Replay folds movements in order from an empty (0,0) record.
func Replay(movements []Movement) (stock, reserved int) {
	for _, mv := range movements {
		switch mv.Counter {
		case CounterReserved:
			reserved += mv.QuantityChange
		default:
			stock += mv.QuantityChange
		}
	}
	return stock, reserved
}
