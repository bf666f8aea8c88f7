package handler

import (
	"context"
	"errors"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	uc     inventory.UseCase
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		logger: log,
	}
}

var _ InventoryServiceServer = (*InventoryHandler)(nil)

func (h *InventoryHandler) Reserve(ctx context.Context, req *ReserveRequest) (*ReservationResponse, error) {
	res, err := h.uc.Reserve(ctx, &dto.ReserveInput{
		ProductID:     req.ProductID,
		VariantID:     stringPtr(req.VariantID),
		Quantity:      int(req.Quantity),
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReservationResponse{Reservation: mapReservation(res)}, nil
}

func (h *InventoryHandler) Release(ctx context.Context, req *SettleRequest) (*SettleResponse, error) {
	settled, err := h.uc.Release(ctx, req.ReservationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SettleResponse{Settled: settledCount(settled)}, nil
}

func (h *InventoryHandler) Commit(ctx context.Context, req *SettleRequest) (*SettleResponse, error) {
	settled, err := h.uc.Commit(ctx, req.ReservationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SettleResponse{Settled: settledCount(settled)}, nil
}

func (h *InventoryHandler) ReleaseByReference(ctx context.Context, req *ReferenceRequest) (*SettleResponse, error) {
	n, err := h.uc.ReleaseByReference(ctx, req.ReferenceType, req.ReferenceID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SettleResponse{Settled: int32(n)}, nil
}

func (h *InventoryHandler) CommitByReference(ctx context.Context, req *ReferenceRequest) (*SettleResponse, error) {
	n, err := h.uc.CommitByReference(ctx, req.ReferenceType, req.ReferenceID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SettleResponse{Settled: int32(n)}, nil
}

func (h *InventoryHandler) ExpireReservations(ctx context.Context, req *ExpireRequest) (*ExpireResponse, error) {
	now := time.Now()
	if req.Now != nil {
		now = *req.Now
	}
	result, err := h.uc.ExpireReservations(ctx, now)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ExpireResponse{
		Released: int32(result.Released),
		Skipped:  int32(result.Skipped),
		Failed:   int32(result.Failed),
	}, nil
}

func settledCount(settled bool) int32 {
	if settled {
		return 1
	}
	return 0
}

func (h *InventoryHandler) Adjust(ctx context.Context, req *AdjustRequest) (*AdjustResponse, error) {
	rec, err := h.uc.Adjust(ctx, &dto.AdjustInput{
		ProductID:     req.ProductID,
		VariantID:     stringPtr(req.VariantID),
		Value:         int(req.Value),
		Mode:          dto.AdjustMode(req.Mode),
		ActionType:    req.ActionType,
		Reason:        req.Reason,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	})
	if errors.Is(err, inventory.ErrNoOpAdjustment) {
		return &AdjustResponse{Inventory: mapInventory(rec), NoOp: true}, nil
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &AdjustResponse{Inventory: mapInventory(rec)}, nil
}

func (h *InventoryHandler) BulkAdjust(ctx context.Context, req *BulkAdjustRequest) (*BulkAdjustResponse, error) {
	items := make([]dto.BulkAdjustItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = dto.BulkAdjustItem{
			ProductID:  item.ProductID,
			VariantID:  stringPtr(item.VariantID),
			Delta:      int(item.Delta),
			Mode:       dto.AdjustMode(item.Mode),
			ActionType: item.ActionType,
			Reason:     item.Reason,
		}
	}

	result, err := h.uc.BulkAdjust(ctx, &dto.BulkAdjustInput{Items: items})
	var batch *inventory.BatchError
	if err != nil && !errors.As(err, &batch) {
		return nil, toStatus(err)
	}

	resp := &BulkAdjustResponse{
		Successful: int32(result.Successful),
		Failed:     int32(result.Failed),
		Unchanged:  int32(result.Unchanged),
		Errors:     make([]BulkAdjustError, 0, len(result.Errors)),
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, BulkAdjustError{
			Index: int32(e.Index),
			Item:  req.Items[e.Index],
			Error: e.Error,
		})
	}
	if batch != nil {
		h.logger.Warn("bulk adjustment partially failed", zap.Int("failed", len(batch.Failed)), zap.Int("total", batch.Total))
	}
	return resp, nil
}

func (h *InventoryHandler) GetInventory(ctx context.Context, req *GetInventoryRequest) (*InventoryEntry, error) {
	rec, err := h.uc.GetInventory(ctx, req.ProductID, stringPtr(req.VariantID))
	if err != nil {
		return nil, toStatus(err)
	}
	return mapInventory(rec), nil
}

func (h *InventoryHandler) ListInventory(ctx context.Context, req *ListInventoryRequest) (*ListInventoryResponse, error) {
	records, page, err := h.uc.ListInventory(ctx, &dto.InventoryFilters{
		ProductID:  req.ProductID,
		Search:     req.Search,
		LowStock:   req.LowStock,
		OutOfStock: req.OutOfStock,
		Page:       int(req.Page),
		PerPage:    int(req.PerPage),
	})
	if err != nil {
		return nil, toStatus(err)
	}

	items := make([]*InventoryEntry, len(records))
	for i := range records {
		items[i] = mapInventory(&records[i])
	}
	return &ListInventoryResponse{Items: items, Pagination: page}, nil
}

func (h *InventoryHandler) StockSummary(ctx context.Context, _ *StockSummaryRequest) (*StockSummaryResponse, error) {
	summary, err := h.uc.StockSummary(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &StockSummaryResponse{Summary: summary}, nil
}

func (h *InventoryHandler) GetHistory(ctx context.Context, req *HistoryRequest) (*HistoryResponse, error) {
	result, err := h.uc.GetHistory(ctx, movementFilters(req))
	if err != nil {
		return nil, toStatus(err)
	}
	return &HistoryResponse{
		Movements:  result.Movements,
		Pagination: result.Pagination,
		Statistics: result.Statistics,
	}, nil
}

func (h *InventoryHandler) Replay(ctx context.Context, req *ReplayRequest) (*ReplayResponse, error) {
	result, err := h.uc.Replay(ctx, req.InventoryID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ReplayResponse{Result: result}, nil
}

func (h *InventoryHandler) Export(ctx context.Context, req *ExportRequest) (*ExportResponse, error) {
	result, err := h.uc.Export(ctx, &dto.ExportInput{
		Filters: *movementFilters(&req.Filters),
		Format:  dto.ExportFormat(req.Format),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return &ExportResponse{
		Filename:    result.Filename,
		ContentType: result.ContentType,
		Rows:        int32(result.Rows),
		Data:        result.Data,
	}, nil
}

func (h *InventoryHandler) SyncFromCatalog(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	items := make([]dto.CatalogItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = dto.CatalogItem{
			ProductID:       item.ProductID,
			VariantID:       stringPtr(item.VariantID),
			Name:            item.Name,
			SKU:             item.SKU,
			Stock:           int(item.Stock),
			ReorderLevel:    int(item.ReorderLevel),
			ReorderQuantity: int(item.ReorderQuantity),
			Reset:           item.Reset,
		}
	}

	// Item failures are reported in the result.
	result, err := h.uc.ReconcileCatalog(ctx, items)
	var batch *inventory.BatchError
	if err != nil && !errors.As(err, &batch) {
		return nil, toStatus(err)
	}
	return &SyncResponse{Result: result}, nil
}

func movementFilters(req *HistoryRequest) *dto.MovementFilters {
	return &dto.MovementFilters{
		InventoryID: req.InventoryID,
		ProductID:   req.ProductID,
		VariantID:   stringPtr(req.VariantID),
		Search:      req.Search,
		ActionType:  model.ActionType(req.ActionType),
		DateFrom:    req.DateFrom,
		DateTo:      req.DateTo,
		Newest:      req.Newest,
		Page:        int(req.Page),
		PerPage:     int(req.PerPage),
	}
}

func mapInventory(m *model.InventoryRecord) *InventoryEntry {
	if m == nil {
		return nil
	}

	variantID := ""
	if m.VariantID != nil {
		variantID = *m.VariantID
	}

	return &InventoryEntry{
		ID:                m.ID,
		ProductID:         m.ProductID,
		VariantID:         variantID,
		ProductName:       m.ProductName,
		SKU:               m.SKU,
		StockLevel:        int32(m.StockLevel),
		ReservedQuantity:  int32(m.ReservedQuantity),
		AvailableQuantity: int32(m.AvailableQuantity()),
		ReorderLevel:      int32(m.ReorderLevel),
		ReorderQuantity:   int32(m.ReorderQuantity),
		IsLowStock:        m.IsLowStock(),
		IsOutOfStock:      m.IsOutOfStock(),
		NeedsReorder:      m.NeedsReorder(),
		Version:           m.Version,
		UpdatedAt:         m.UpdatedAt,
	}
}

func mapReservation(r *model.Reservation) *ReservationEntry {
	if r == nil {
		return nil
	}
	return &ReservationEntry{
		ID:            r.ID,
		InventoryID:   r.InventoryID,
		Quantity:      int32(r.Quantity),
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
		Status:        string(r.Status),
		ExpiresAt:     r.ExpiresAt,
		CreatedAt:     r.CreatedAt,
	}
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
