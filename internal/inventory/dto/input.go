package dto

type AdjustMode string

const (
	ModeRelative AdjustMode = "relative"
	ModeAbsolute AdjustMode = "absolute"
)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

type ReserveInput struct {
	ProductID     string  `json:"product_id" validate:"required"`
	VariantID     *string `json:"variant_id,omitempty"`
	Quantity      int     `json:"quantity" validate:"gt=0"`
	ReferenceType string  `json:"reference_type" validate:"required"`
	ReferenceID   string  `json:"reference_id" validate:"required"`
}

type AdjustInput struct {
	ProductID string     `json:"product_id" validate:"required"`
	VariantID *string    `json:"variant_id,omitempty"`
	Value     int        `json:"value"`
	Mode      AdjustMode `json:"mode" validate:"omitempty,oneof=relative absolute"`
	// ActionType lets the caller classify a relative change as addition, removal or return.
	ActionType    string `json:"action_type,omitempty" validate:"omitempty,oneof=adjustment addition removal return"`
	Reason        string `json:"reason"`
	ReferenceType string `json:"reference_type,omitempty"`
	ReferenceID   string `json:"reference_id,omitempty"`
	Actor         string `json:"actor,omitempty"`
}

type BulkAdjustItem struct {
	ProductID  string     `json:"product_id" validate:"required"`
	VariantID  *string    `json:"variant_id,omitempty"`
	Delta      int        `json:"delta"`
	Mode       AdjustMode `json:"mode,omitempty" validate:"omitempty,oneof=relative absolute"`
	ActionType string     `json:"action_type,omitempty"`
	Reason     string     `json:"reason"`
}

type BulkAdjustInput struct {
	Items []BulkAdjustItem `json:"items" validate:"required,min=1"`
	Actor string           `json:"actor,omitempty"`
}

// CatalogItem is one product/variant as the catalog sees it.
type CatalogItem struct {
	ProductID       string  `json:"product_id" validate:"required"`
	VariantID       *string `json:"variant_id,omitempty"`
	Name            string  `json:"name"`
	SKU             string  `json:"sku"`
	Stock           int     `json:"stock" validate:"gte=0"`
	ReorderLevel    int     `json:"reorder_level" validate:"gte=0"`
	ReorderQuantity int     `json:"reorder_quantity" validate:"gte=0"`
	// Reset moves an existing record's stock to Stock instead of leaving it untouched.
	Reset bool `json:"reset,omitempty"`
}

type ExportInput struct {
	Filters MovementFilters
	Format  ExportFormat `validate:"omitempty,oneof=csv json"`
}
