package dto

import (
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

type InventoryFilters struct {
	ProductID  string
	Search     string // matches product name or SKU
	LowStock   bool
	OutOfStock bool
	Page       int
	PerPage    int // 0 means no limit
}

type MovementFilters struct {
	InventoryID string
	ProductID   string
	VariantID   *string
	Search      string
	ActionType  model.ActionType
	DateFrom    *time.Time
	DateTo      *time.Time
	Newest      bool // newest first; ledger order otherwise
	Page        int
	PerPage     int // 0 means no limit
}

type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NormalizePage clamps page and perPage to the public query bounds.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

func NewPagination(page, perPage, total int) *Pagination {
	totalPages := 0
	if perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	return &Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

type MovementStatistics struct {
	TotalAdditions   int `json:"total_additions"`
	TotalRemovals    int `json:"total_removals"`
	TotalAdjustments int `json:"total_adjustments"`
	TotalSales       int `json:"total_sales"`
	TotalReturns     int `json:"total_returns"`
	TotalSynced      int `json:"total_synced"`
	TotalReserved    int `json:"total_reserved"`
	TotalReleased    int `json:"total_released"`
}

type HistoryResult struct {
	Movements  []model.MovementView `json:"movements"`
	Pagination *Pagination          `json:"pagination"`
	Statistics *MovementStatistics  `json:"statistics"`
}

type StockSummary struct {
	TotalRecords  int `json:"total_records"`
	LowStock      int `json:"low_stock"`
	OutOfStock    int `json:"out_of_stock"`
	NeedsReorder  int `json:"needs_reorder"`
	TotalUnits    int `json:"total_units"`
	ReservedUnits int `json:"reserved_units"`
}

type ReplayResult struct {
	InventoryID      string `json:"inventory_id"`
	StockLevel       int    `json:"stock_level"`
	ReservedQuantity int    `json:"reserved_quantity"`
	ReplayedStock    int    `json:"replayed_stock"`
	ReplayedReserved int    `json:"replayed_reserved"`
	MovementCount    int    `json:"movement_count"`
	Consistent       bool   `json:"consistent"`
}

type BulkItemError struct {
	Index int            `json:"index"`
	Item  BulkAdjustItem `json:"item"`
	Error string         `json:"error"`
}

type BulkAdjustResult struct {
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Unchanged  int             `json:"unchanged"`
	Errors     []BulkItemError `json:"errors"`
}

type SyncResult struct {
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Unchanged int             `json:"unchanged"`
	Failed    int             `json:"failed"`
	Errors    []SyncItemError `json:"errors,omitempty"`
}

type SyncItemError struct {
	Index     int    `json:"index"`
	ProductID string `json:"product_id"`
	Error     string `json:"error"`
}

type ExpireResult struct {
	Released int `json:"released"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type ExportResult struct {
	Format      string `json:"format"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Data        []byte `json:"data"`
	Rows        int    `json:"rows"`
}
