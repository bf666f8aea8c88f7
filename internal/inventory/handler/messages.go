package handler

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

type ReserveRequest struct {
	ProductID     string `json:"product_id"`
	VariantID     string `json:"variant_id,omitempty"`
	Quantity      int32  `json:"quantity"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

type ReservationResponse struct {
	Reservation *ReservationEntry `json:"reservation"`
}

type ReservationEntry struct {
	ID            string    `json:"id"`
	InventoryID   string    `json:"inventory_id"`
	Quantity      int32     `json:"quantity"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   string    `json:"reference_id"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type SettleRequest struct {
	ReservationID string `json:"reservation_id"`
}

type ReferenceRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

type SettleResponse struct {
	Settled int32 `json:"settled"`
}

type ExpireRequest struct {
	// Now defaults to the server clock.
	Now *time.Time `json:"now,omitempty"`
}

type ExpireResponse struct {
	Released int32 `json:"released"`
	Skipped  int32 `json:"skipped"`
	Failed   int32 `json:"failed"`
}

type AdjustRequest struct {
	ProductID     string `json:"product_id"`
	VariantID     string `json:"variant_id,omitempty"`
	Value         int32  `json:"value"`
	Mode          string `json:"mode,omitempty"`
	ActionType    string `json:"action_type,omitempty"`
	Reason        string `json:"reason"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
}

type AdjustResponse struct {
	Inventory *InventoryEntry `json:"inventory"`
	NoOp      bool            `json:"no_op"`
}

type BulkAdjustItem struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Delta      int32  `json:"delta"`
	Mode       string `json:"mode,omitempty"`
	ActionType string `json:"action_type,omitempty"`
	Reason     string `json:"reason"`
}

type BulkAdjustRequest struct {
	Items []BulkAdjustItem `json:"items"`
}

type BulkAdjustResponse struct {
	Successful int32             `json:"successful"`
	Failed     int32             `json:"failed"`
	Unchanged  int32             `json:"unchanged"`
	Errors     []BulkAdjustError `json:"errors"`
}

type BulkAdjustError struct {
	Index int32          `json:"index"`
	Item  BulkAdjustItem `json:"item"`
	Error string         `json:"error"`
}

type GetInventoryRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
}

// InventoryEntry is a record together with its derived flags.
type InventoryEntry struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	VariantID         string    `json:"variant_id,omitempty"`
	ProductName       string    `json:"product_name"`
	SKU               string    `json:"sku"`
	StockLevel        int32     `json:"stock_level"`
	ReservedQuantity  int32     `json:"reserved_quantity"`
	AvailableQuantity int32     `json:"available_quantity"`
	ReorderLevel      int32     `json:"reorder_level"`
	ReorderQuantity   int32     `json:"reorder_quantity"`
	IsLowStock        bool      `json:"is_low_stock"`
	IsOutOfStock      bool      `json:"is_out_of_stock"`
	NeedsReorder      bool      `json:"needs_reorder"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ListInventoryRequest struct {
	ProductID  string `json:"product_id,omitempty"`
	Search     string `json:"search,omitempty"`
	LowStock   bool   `json:"low_stock,omitempty"`
	OutOfStock bool   `json:"out_of_stock,omitempty"`
	Page       int32  `json:"page,omitempty"`
	PerPage    int32  `json:"per_page,omitempty"`
}

type ListInventoryResponse struct {
	Items      []*InventoryEntry `json:"items"`
	Pagination *dto.Pagination   `json:"pagination"`
}

type StockSummaryRequest struct{}

type StockSummaryResponse struct {
	Summary *dto.StockSummary `json:"summary"`
}

type HistoryRequest struct {
	InventoryID string     `json:"inventory_id,omitempty"`
	ProductID   string     `json:"product_id,omitempty"`
	VariantID   string     `json:"variant_id,omitempty"`
	Search      string     `json:"search,omitempty"`
	ActionType  string     `json:"action_type,omitempty"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	Newest      bool       `json:"newest,omitempty"`
	Page        int32      `json:"page,omitempty"`
	PerPage     int32      `json:"per_page,omitempty"`
}

type HistoryResponse struct {
	Movements  []model.MovementView    `json:"movements"`
	Pagination *dto.Pagination         `json:"pagination"`
	Statistics *dto.MovementStatistics `json:"statistics"`
}

type ReplayRequest struct {
	InventoryID string `json:"inventory_id"`
}

type ReplayResponse struct {
	Result *dto.ReplayResult `json:"result"`
}

type ExportRequest struct {
	Filters HistoryRequest `json:"filters"`
	Format  string         `json:"format,omitempty"`
}

type ExportResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Rows        int32  `json:"rows"`
	Data        []byte `json:"data"`
}

type CatalogItem struct {
	ProductID       string `json:"product_id"`
	VariantID       string `json:"variant_id,omitempty"`
	Name            string `json:"name"`
	SKU             string `json:"sku"`
	Stock           int32  `json:"stock"`
	ReorderLevel    int32  `json:"reorder_level"`
	ReorderQuantity int32  `json:"reorder_quantity"`
	Reset           bool   `json:"reset,omitempty"`
}

type SyncRequest struct {
	Items []CatalogItem `json:"items"`
}

type SyncResponse struct {
	Result *dto.SyncResult `json:"result"`
}
