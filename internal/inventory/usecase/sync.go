package usecase

import (
	"context"
	"fmt"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const syncLockKey = "lock:inventory:sync"

type syncOutcome int

const (
	syncUnchanged syncOutcome = iota
	syncCreated
	syncUpdated
)

// SyncFromCatalog creates missing records and refreshes metadata of existing ones.
// Existing counters are only touched for items flagged Reset. One failing item never stops the run.
// It takes no lock: each item is applied to its record atomically.
// Failed items are listed in the result and returned as a *inventory.BatchError.
func (uc *inventoryUseCase) SyncFromCatalog(ctx context.Context, items []dto.CatalogItem) (result *dto.SyncResult, err error) {
	ctx, span := uc.startSpan(ctx, "SyncFromCatalog", attribute.Int("items", len(items)))
	defer func() { endSpan(span, err) }()

	return uc.syncItems(ctx, items)
}

// ReconcileCatalog is the operator-triggered bulk sync. Only one runs at a time across
// instances; event-driven SyncFromCatalog calls do not wait for it.
func (uc *inventoryUseCase) ReconcileCatalog(ctx context.Context, items []dto.CatalogItem) (result *dto.SyncResult, err error) {
	ctx, span := uc.startSpan(ctx, "ReconcileCatalog", attribute.Int("items", len(items)))
	defer func() { endSpan(span, err) }()

	if uc.locker != nil {
		token := uuid.New().String()
		acquired, err := uc.locker.AcquireLock(ctx, syncLockKey, token, uc.opts.SyncLockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire sync lock: %w", err)
		}
		if !acquired {
			return nil, inventory.ErrSyncInProgress
		}
		defer func() {
			if err := uc.locker.ReleaseLock(context.WithoutCancel(ctx), syncLockKey, token); err != nil {
				uc.logger.Warn("failed to release sync lock", zap.Error(err))
			}
		}()
	}

	return uc.syncItems(ctx, items)
}

func (uc *inventoryUseCase) syncItems(ctx context.Context, items []dto.CatalogItem) (*dto.SyncResult, error) {
	result := &dto.SyncResult{}
	var failed []inventory.ItemError
	for i := range items {
		outcome, err := uc.syncItem(ctx, &items[i])
		if err != nil {
			result.Failed++
			failed = append(failed, inventory.ItemError{Index: i, Err: err})
			result.Errors = append(result.Errors, dto.SyncItemError{
				Index:     i,
				ProductID: items[i].ProductID,
				Error:     err.Error(),
			})
			uc.logger.Warn("catalog item sync failed",
				zap.Int("index", i),
				zap.String("product_id", items[i].ProductID),
				zap.Error(err),
			)
			continue
		}
		switch outcome {
		case syncCreated:
			result.Created++
		case syncUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	uc.logger.Info("catalog sync finished",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
	)

	if len(failed) > 0 {
		return result, &inventory.BatchError{Total: len(items), Failed: failed}
	}
	return result, nil
}

func (uc *inventoryUseCase) syncItem(ctx context.Context, item *dto.CatalogItem) (syncOutcome, error) {
	if err := uc.validateInput(ctx, item); err != nil {
		return syncUnchanged, err
	}

	key := model.NewRecordKey(item.ProductID, item.VariantID)
	defaults := &model.RecordDefaults{
		ProductName:     item.Name,
		SKU:             item.SKU,
		StockLevel:      item.Stock,
		ReorderLevel:    item.ReorderLevel,
		ReorderQuantity: item.ReorderQuantity,
	}

	outcome := syncUnchanged
	err := uc.withRetry(ctx, "sync", func() error {
		rec, created, err := uc.repo.GetOrCreate(ctx, key, defaults)
		if err != nil {
			return err
		}
		if created {
			outcome = syncCreated
			if uc.cache != nil {
				if err := uc.cache.Invalidate(ctx, key, rec.Version); err != nil {
					uc.logger.Warn("failed to invalidate inventory cache", zap.String("inventory_id", rec.ID), zap.Error(err))
				}
			}
			return nil
		}

		m := &model.Mutation{InventoryID: rec.ID, Version: rec.Version}
		if metadataChanged(rec, defaults) {
			m.Metadata = defaults
		}
		if item.Reset && item.Stock != rec.StockLevel {
			if item.Stock < rec.ReservedQuantity {
				return fmt.Errorf("%w: catalog stock %d is below reserved quantity %d",
					inventory.ErrInvalidState, item.Stock, rec.ReservedQuantity)
			}
			m.Deltas = []model.Delta{{
				Counter: model.CounterStock,
				Amount:  item.Stock - rec.StockLevel,
				Action:  model.ActionSync,
			}}
			reason := "catalog reset"
			m.Reason = &reason
		}
		if m.Metadata == nil && len(m.Deltas) == 0 {
			outcome = syncUnchanged
			return nil
		}

		updated, movements, err := uc.repo.ApplyDelta(ctx, m)
		if err != nil {
			return err
		}
		uc.afterWrite(ctx, updated, movements)
		outcome = syncUpdated
		return nil
	})
	return outcome, err
}

func metadataChanged(rec *model.InventoryRecord, d *model.RecordDefaults) bool {
	return rec.ProductName != d.ProductName ||
		rec.SKU != d.SKU ||
		rec.ReorderLevel != d.ReorderLevel ||
		rec.ReorderQuantity != d.ReorderQuantity
}
