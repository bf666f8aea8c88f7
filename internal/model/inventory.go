package model

import "time"

type InventoryRecord struct {
	ID               string    `db:"id" json:"id"`
	ProductID        string    `db:"product_id" json:"product_id"`
	VariantID        *string   `db:"variant_id" json:"variant_id,omitempty"`
	ProductName      string    `db:"product_name" json:"product_name"`
	SKU              string    `db:"sku" json:"sku"`
	StockLevel       int       `db:"stock_level" json:"stock_level"`
	ReservedQuantity int       `db:"reserved_quantity" json:"reserved_quantity"`
	ReorderLevel     int       `db:"reorder_level" json:"reorder_level"`
	ReorderQuantity  int       `db:"reorder_quantity" json:"reorder_quantity"`
	Version          int64     `db:"version" json:"version"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

func (r *InventoryRecord) Key() RecordKey {
	return NewRecordKey(r.ProductID, r.VariantID)
}

func (r *InventoryRecord) AvailableQuantity() int {
	return r.StockLevel - r.ReservedQuantity
}

func (r *InventoryRecord) IsLowStock() bool {
	return r.StockLevel > 0 && r.StockLevel <= r.ReorderLevel
}

func (r *InventoryRecord) IsOutOfStock() bool {
	return r.StockLevel <= 0
}

// NeedsReorder reports whether sellable units dropped to the reorder threshold.
// Records without a threshold never need a reorder.
func (r *InventoryRecord) NeedsReorder() bool {
	return r.ReorderLevel > 0 && r.AvailableQuantity() <= r.ReorderLevel
}

// Counter returns the current value of c.
func (r *InventoryRecord) Counter(c Counter) int {
	if c == CounterReserved {
		return r.ReservedQuantity
	}
	return r.StockLevel
}

func (r *InventoryRecord) setCounter(c Counter, v int) {
	if c == CounterReserved {
		r.ReservedQuantity = v
		return
	}
	r.StockLevel = v
}

// Valid reports whether the counters satisfy the record invariants.
func (r *InventoryRecord) Valid() bool {
	return r.StockLevel >= 0 && r.ReservedQuantity >= 0 && r.ReservedQuantity <= r.StockLevel
}

// RecordKey identifies a record by product and optional variant.
// An empty VariantID means the base product.
type RecordKey struct {
	ProductID string
	VariantID string
}

func NewRecordKey(productID string, variantID *string) RecordKey {
	k := RecordKey{ProductID: productID}
	if variantID != nil {
		k.VariantID = *variantID
	}
	return k
}

func (k RecordKey) VariantPtr() *string {
	if k.VariantID == "" {
		return nil
	}
	v := k.VariantID
	return &v
}

func (k RecordKey) String() string {
	if k.VariantID == "" {
		return k.ProductID
	}
	return k.ProductID + ":" + k.VariantID
}

// RecordDefaults seeds a record created through GetOrCreate.
type RecordDefaults struct {
	ProductName     string
	SKU             string
	StockLevel      int
	ReorderLevel    int
	ReorderQuantity int
}
