package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultReferenceType = "manual"

// Adjust corrects stock_level. The record is created on first use.
// A zero effective delta returns the current record together with ErrNoOpAdjustment.
func (uc *inventoryUseCase) Adjust(ctx context.Context, input *dto.AdjustInput) (rec *model.InventoryRecord, err error) {
	ctx, span := uc.startSpan(ctx, "Adjust",
		attribute.String("product_id", input.ProductID),
		attribute.String("mode", string(input.Mode)),
		attribute.Int("value", input.Value),
	)
	defer func() { endSpan(span, err) }()

	if err := uc.validateInput(ctx, input); err != nil {
		return nil, err
	}

	mode := input.Mode
	if mode == "" {
		mode = dto.ModeRelative
	}
	if mode == dto.ModeAbsolute && input.Value < 0 {
		return nil, fmt.Errorf("%w: absolute stock level cannot be negative", inventory.ErrInvalidInput)
	}

	referenceType := input.ReferenceType
	if referenceType == "" {
		referenceType = defaultReferenceType
	}

	key := model.NewRecordKey(input.ProductID, input.VariantID)
	err = uc.withRetry(ctx, "adjust", func() error {
		current, err := uc.repo.GetByKey(ctx, key)
		switch {
		case errors.Is(err, inventory.ErrNotFound):
			current = &model.InventoryRecord{}
		case err != nil:
			return err
		}

		// Plan against what we read; a rejected adjustment never creates the record.
		delta, action, err := planAdjustment(current, mode, input)
		noop := errors.Is(err, inventory.ErrNoOpAdjustment)
		if err != nil && !noop {
			return err
		}
		if noop && current.ID != "" {
			rec = current
			return err
		}

		if current.ID == "" {
			if current, _, err = uc.repo.GetOrCreate(ctx, key, nil); err != nil {
				return err
			}
			// Someone may have created it with stock in the meantime.
			if delta, action, err = planAdjustment(current, mode, input); err != nil {
				if errors.Is(err, inventory.ErrNoOpAdjustment) {
					rec = current
				}
				return err
			}
		}

		m := &model.Mutation{
			InventoryID:   current.ID,
			Deltas:        []model.Delta{{Counter: model.CounterStock, Amount: delta, Action: action}},
			Reason:        optional(input.Reason),
			ReferenceType: &referenceType,
			ReferenceID:   optional(input.ReferenceID),
			Actor:         actorPtr(ctx, input.Actor),
		}
		// An absolute level is only meaningful against the stock it was computed from.
		// Relative deltas commute and are checked against the record under the store lock.
		if mode == dto.ModeAbsolute {
			m.Version = current.Version
		}

		updated, movements, err := uc.repo.ApplyDelta(ctx, m)
		if err != nil {
			return err
		}
		uc.afterWrite(ctx, updated, movements)
		rec = updated
		return nil
	})
	if errors.Is(err, inventory.ErrNoOpAdjustment) {
		return rec, err
	}
	if err != nil {
		return nil, err
	}

	uc.logger.Info("stock adjusted",
		zap.String("inventory_id", rec.ID),
		zap.String("product_id", rec.ProductID),
		zap.Int("stock_level", rec.StockLevel),
		zap.String("reason", input.Reason),
	)
	return rec, nil
}

// planAdjustment turns an adjustment request into a stock delta against current.
func planAdjustment(current *model.InventoryRecord, mode dto.AdjustMode, input *dto.AdjustInput) (int, model.ActionType, error) {
	delta := input.Value
	if mode == dto.ModeAbsolute {
		delta = input.Value - current.StockLevel
	}
	if delta == 0 {
		return 0, "", inventory.ErrNoOpAdjustment
	}
	if next := current.StockLevel + delta; next < current.ReservedQuantity || next < 0 {
		return 0, "", fmt.Errorf("%w: stock level %d would fall below reserved quantity %d",
			inventory.ErrInvalidState, next, current.ReservedQuantity)
	}
	action, err := adjustmentAction(model.ActionType(input.ActionType), delta)
	if err != nil {
		return 0, "", err
	}
	return delta, action, nil
}

// adjustmentAction classifies a stock delta. Callers may name the direction; it must agree with the sign.
func adjustmentAction(requested model.ActionType, delta int) (model.ActionType, error) {
	switch requested {
	case "", model.ActionAdjustment:
		return model.ActionAdjustment, nil
	case model.ActionAddition, model.ActionReturn:
		if delta < 0 {
			return "", fmt.Errorf("%w: %s requires a positive change, got %d", inventory.ErrInvalidInput, requested, delta)
		}
		return requested, nil
	case model.ActionRemoval:
		if delta > 0 {
			return "", fmt.Errorf("%w: removal requires a negative change, got %d", inventory.ErrInvalidInput, delta)
		}
		return requested, nil
	}
	return "", fmt.Errorf("%w: action type %q cannot be used for adjustments", inventory.ErrInvalidInput, requested)
}

// BulkAdjust applies every item independently. Failed items are reported in the result and,
// when there are any, in a *inventory.BatchError; the rest stay applied.
func (uc *inventoryUseCase) BulkAdjust(ctx context.Context, input *dto.BulkAdjustInput) (result *dto.BulkAdjustResult, err error) {
	ctx, span := uc.startSpan(ctx, "BulkAdjust", attribute.Int("items", len(input.Items)))
	defer func() { endSpan(span, err) }()

	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", inventory.ErrInvalidInput)
	}

	result = &dto.BulkAdjustResult{Errors: []dto.BulkItemError{}}
	var (
		mu     sync.Mutex
		failed []inventory.ItemError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.BulkConcurrency)
	for i, item := range input.Items {
		g.Go(func() error {
			_, err := uc.Adjust(gctx, &dto.AdjustInput{
				ProductID:     item.ProductID,
				VariantID:     item.VariantID,
				Value:         item.Delta,
				Mode:          item.Mode,
				ActionType:    item.ActionType,
				Reason:        item.Reason,
				ReferenceType: "bulk",
				Actor:         input.Actor,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Successful++
			case errors.Is(err, inventory.ErrNoOpAdjustment):
				result.Successful++
				result.Unchanged++
			default:
				result.Failed++
				failed = append(failed, inventory.ItemError{Index: i, Err: err})
				result.Errors = append(result.Errors, dto.BulkItemError{Index: i, Item: item, Error: err.Error()})
			}
			// Item failures never cancel the batch.
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Errors, func(a, b int) bool { return result.Errors[a].Index < result.Errors[b].Index })
	sort.Slice(failed, func(a, b int) bool { return failed[a].Index < failed[b].Index })

	uc.logger.Info("bulk adjustment finished",
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("unchanged", result.Unchanged),
	)

	if len(failed) > 0 {
		return result, &inventory.BatchError{Total: len(input.Items), Failed: failed}
	}
	return result, nil
}
