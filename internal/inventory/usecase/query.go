package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var exportHeader = []string{
	"id", "created_at", "product_id", "variant_id", "product_name", "sku",
	"action_type", "counter", "quantity_change", "previous_quantity", "new_quantity",
	"reason", "reference_type", "reference_id", "actor",
}

func (uc *inventoryUseCase) GetInventory(ctx context.Context, productID string, variantID *string) (rec *model.InventoryRecord, err error) {
	ctx, span := uc.startSpan(ctx, "GetInventory", attribute.String("product_id", productID))
	defer func() { endSpan(span, err) }()

	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", inventory.ErrInvalidInput)
	}
	key := model.NewRecordKey(productID, variantID)

	if uc.cache != nil {
		cached, err := uc.cache.Get(ctx, key)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, inventory.ErrNotFound) {
			uc.logger.Warn("inventory cache read failed", zap.String("key", key.String()), zap.Error(err))
		}
	}

	rec, err = uc.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, rec); err != nil {
			uc.logger.Warn("inventory cache write failed", zap.String("key", key.String()), zap.Error(err))
		}
	}
	return rec, nil
}

func (uc *inventoryUseCase) ListInventory(ctx context.Context, filters *dto.InventoryFilters) (records []model.InventoryRecord, page *dto.Pagination, err error) {
	ctx, span := uc.startSpan(ctx, "ListInventory")
	defer func() { endSpan(span, err) }()

	f := *filters
	f.Page, f.PerPage = dto.NormalizePage(f.Page, f.PerPage)

	records, total, err := uc.repo.FindAll(ctx, &f)
	if err != nil {
		return nil, nil, err
	}
	return records, dto.NewPagination(f.Page, f.PerPage, total), nil
}

// StockSummary derives dashboard counters from a full scan of the records.
func (uc *inventoryUseCase) StockSummary(ctx context.Context) (summary *dto.StockSummary, err error) {
	ctx, span := uc.startSpan(ctx, "StockSummary")
	defer func() { endSpan(span, err) }()

	records, _, err := uc.repo.FindAll(ctx, &dto.InventoryFilters{})
	if err != nil {
		return nil, err
	}

	summary = &dto.StockSummary{TotalRecords: len(records)}
	for i := range records {
		rec := &records[i]
		if rec.IsLowStock() {
			summary.LowStock++
		}
		if rec.IsOutOfStock() {
			summary.OutOfStock++
		}
		if rec.NeedsReorder() {
			summary.NeedsReorder++
		}
		summary.TotalUnits += rec.StockLevel
		summary.ReservedUnits += rec.ReservedQuantity
	}
	return summary, nil
}

func (uc *inventoryUseCase) GetHistory(ctx context.Context, filters *dto.MovementFilters) (result *dto.HistoryResult, err error) {
	ctx, span := uc.startSpan(ctx, "GetHistory")
	defer func() { endSpan(span, err) }()

	if err := validateMovementFilters(filters); err != nil {
		return nil, err
	}

	f := *filters
	f.Page, f.PerPage = dto.NormalizePage(f.Page, f.PerPage)

	movements, total, err := uc.repo.ListMovements(ctx, &f)
	if err != nil {
		return nil, err
	}
	stats, err := uc.Statistics(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &dto.HistoryResult{
		Movements:  movements,
		Pagination: dto.NewPagination(f.Page, f.PerPage, total),
		Statistics: stats,
	}, nil
}

// Statistics aggregates the filtered ledger by action. Outflows are reported as magnitudes,
// adjustments as a net signed sum.
func (uc *inventoryUseCase) Statistics(ctx context.Context, filters *dto.MovementFilters) (stats *dto.MovementStatistics, err error) {
	if err := validateMovementFilters(filters); err != nil {
		return nil, err
	}

	sums, err := uc.repo.SumMovementsByAction(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &dto.MovementStatistics{
		TotalAdditions:   sums[model.ActionAddition],
		TotalRemovals:    -sums[model.ActionRemoval],
		TotalAdjustments: sums[model.ActionAdjustment],
		TotalSales:       -sums[model.ActionSale],
		TotalReturns:     sums[model.ActionReturn],
		TotalSynced:      sums[model.ActionSync],
		TotalReserved:    sums[model.ActionReservation],
		TotalReleased:    -sums[model.ActionRelease],
	}, nil
}

func validateMovementFilters(f *dto.MovementFilters) error {
	if f.ActionType != "" && !f.ActionType.Valid() {
		return fmt.Errorf("%w: unknown action type %q", inventory.ErrInvalidInput, f.ActionType)
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return fmt.Errorf("%w: date_from is after date_to", inventory.ErrInvalidInput)
	}
	return nil
}

// Replay rebuilds a record's counters from its movements and compares them with the stored values.
func (uc *inventoryUseCase) Replay(ctx context.Context, inventoryID string) (result *dto.ReplayResult, err error) {
	ctx, span := uc.startSpan(ctx, "Replay", attribute.String("inventory_id", inventoryID))
	defer func() { endSpan(span, err) }()

	rec, err := uc.repo.GetByID(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	movements, err := uc.repo.ListRecordMovements(ctx, inventoryID)
	if err != nil {
		return nil, err
	}

	stock, reserved := model.Replay(movements)
	result = &dto.ReplayResult{
		InventoryID:      rec.ID,
		StockLevel:       rec.StockLevel,
		ReservedQuantity: rec.ReservedQuantity,
		ReplayedStock:    stock,
		ReplayedReserved: reserved,
		MovementCount:    len(movements),
		Consistent:       stock == rec.StockLevel && reserved == rec.ReservedQuantity,
	}
	if !result.Consistent {
		uc.logger.Error("ledger replay does not match record",
			zap.String("inventory_id", rec.ID),
			zap.Int("stock_level", rec.StockLevel),
			zap.Int("replayed_stock", stock),
			zap.Int("reserved_quantity", rec.ReservedQuantity),
			zap.Int("replayed_reserved", reserved),
		)
	}
	return result, nil
}

// Export serializes every movement matching the filters. Pagination is ignored.
func (uc *inventoryUseCase) Export(ctx context.Context, input *dto.ExportInput) (result *dto.ExportResult, err error) {
	ctx, span := uc.startSpan(ctx, "Export", attribute.String("format", string(input.Format)))
	defer func() { endSpan(span, err) }()

	if err := uc.validateInput(ctx, input); err != nil {
		return nil, err
	}
	if err := validateMovementFilters(&input.Filters); err != nil {
		return nil, err
	}

	f := input.Filters
	f.Page, f.PerPage = 0, 0
	movements, _, err := uc.repo.ListMovements(ctx, &f)
	if err != nil {
		return nil, err
	}

	format := input.Format
	if format == "" {
		format = dto.FormatCSV
	}
	stamp := uc.now().UTC().Format("20060102-150405")

	result = &dto.ExportResult{
		Format:   string(format),
		Filename: fmt.Sprintf("inventory-history-%s.%s", stamp, format),
		Rows:     len(movements),
	}
	switch format {
	case dto.FormatJSON:
		result.ContentType = "application/json"
		result.Data, err = json.MarshalIndent(movements, "", "  ")
	default:
		result.ContentType = "text/csv"
		result.Data, err = movementsCSV(movements)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s export: %w", format, err)
	}
	return result, nil
}

func movementsCSV(movements []model.MovementView) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, mv := range movements {
		row := []string{
			strconv.FormatInt(mv.ID, 10),
			mv.CreatedAt.UTC().Format(time.RFC3339),
			mv.ProductID,
			deref(mv.VariantID),
			mv.ProductName,
			mv.SKU,
			string(mv.ActionType),
			string(mv.Counter),
			strconv.Itoa(mv.QuantityChange),
			strconv.Itoa(mv.PreviousQty),
			strconv.Itoa(mv.NewQty),
			deref(mv.Reason),
			deref(mv.ReferenceType),
			deref(mv.ReferenceID),
			deref(mv.Actor),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
