package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func (uc *inventoryUseCase) Reserve(ctx context.Context, input *dto.ReserveInput) (res *model.Reservation, err error) {
	ctx, span := uc.startSpan(ctx, "Reserve",
		attribute.String("product_id", input.ProductID),
		attribute.Int("quantity", input.Quantity),
	)
	defer func() { endSpan(span, err) }()

	if err := uc.validateInput(ctx, input); err != nil {
		return nil, err
	}

	key := model.NewRecordKey(input.ProductID, input.VariantID)
	err = uc.withRetry(ctx, "reserve", func() error {
		rec, err := uc.repo.GetByKey(ctx, key)
		if err != nil {
			return err
		}

		// No queueing: the caller decides what to do with a short cart line.
		// The store re-checks availability under its lock.
		if available := rec.AvailableQuantity(); input.Quantity > available {
			return fmt.Errorf("%w: requested %d, available %d", inventory.ErrInsufficientStock, input.Quantity, available)
		}

		now := uc.now()
		candidate := &model.Reservation{
			ID:            uuid.New().String(),
			InventoryID:   rec.ID,
			Quantity:      input.Quantity,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			Status:        model.ReservationActive,
			ExpiresAt:     now.Add(uc.opts.ReservationTTL),
		}

		updated, movements, err := uc.repo.ApplyDelta(ctx, &model.Mutation{
			InventoryID: rec.ID,
			Deltas: []model.Delta{
				{Counter: model.CounterReserved, Amount: input.Quantity, Action: model.ActionReservation},
			},
			ReferenceType:  &candidate.ReferenceType,
			ReferenceID:    &candidate.ReferenceID,
			Actor:          actorPtr(ctx, ""),
			NewReservation: candidate,
		})
		if err != nil {
			return err
		}
		uc.afterWrite(ctx, updated, movements)

		candidate.CreatedAt = updated.UpdatedAt
		candidate.UpdatedAt = updated.UpdatedAt
		res = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("stock reserved",
		zap.String("reservation_id", res.ID),
		zap.String("inventory_id", res.InventoryID),
		zap.Int("quantity", res.Quantity),
		zap.String("reference_id", res.ReferenceID),
	)
	return res, nil
}

// Release gives held units back. Releasing a reservation that is no longer active is a no-op;
// settled reports whether this call did the release.
func (uc *inventoryUseCase) Release(ctx context.Context, reservationID string) (settled bool, err error) {
	ctx, span := uc.startSpan(ctx, "Release", attribute.String("reservation_id", reservationID))
	defer func() { endSpan(span, err) }()

	err = uc.withRetry(ctx, "release", func() error {
		settled = false
		res, err := uc.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !res.IsActive() {
			return nil
		}

		err = uc.settle(ctx, res, model.ReservationReleased, "reservation released")
		if errors.Is(err, inventory.ErrReservationSettled) {
			return nil
		}
		settled = err == nil
		return err
	})
	return settled, err
}

// Commit turns a reservation into a sale: stock and reserved both drop by the held amount.
// Committing an already committed reservation succeeds with settled false.
func (uc *inventoryUseCase) Commit(ctx context.Context, reservationID string) (settled bool, err error) {
	ctx, span := uc.startSpan(ctx, "Commit", attribute.String("reservation_id", reservationID))
	defer func() { endSpan(span, err) }()

	err = uc.withRetry(ctx, "commit", func() error {
		settled = false
		res, err := uc.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		switch res.Status {
		case model.ReservationCommitted:
			return nil
		case model.ReservationReleased:
			return fmt.Errorf("%w: reservation %s was already released", inventory.ErrInvalidState, reservationID)
		}

		err = uc.settle(ctx, res, model.ReservationCommitted, "order committed")
		if errors.Is(err, inventory.ErrReservationSettled) {
			// Someone settled it between our read and write; re-read to report the outcome.
			return inventory.ErrConcurrentModification
		}
		settled = err == nil
		return err
	})
	return settled, err
}

func (uc *inventoryUseCase) settle(ctx context.Context, res *model.Reservation, status model.ReservationStatus, reason string) error {
	deltas := make([]model.Delta, 0, 2)
	if status == model.ReservationCommitted {
		deltas = append(deltas, model.Delta{Counter: model.CounterStock, Amount: -res.Quantity, Action: model.ActionSale})
	}
	deltas = append(deltas, model.Delta{Counter: model.CounterReserved, Amount: -res.Quantity, Action: model.ActionRelease})

	updated, movements, err := uc.repo.ApplyDelta(ctx, &model.Mutation{
		InventoryID:       res.InventoryID,
		Deltas:            deltas,
		Reason:            &reason,
		ReferenceType:     &res.ReferenceType,
		ReferenceID:       &res.ReferenceID,
		Actor:             actorPtr(ctx, ""),
		SettleReservation: &model.ReservationSettlement{ReservationID: res.ID, Status: status},
	})
	if err != nil {
		return err
	}
	uc.afterWrite(ctx, updated, movements)

	uc.logger.Info("reservation settled",
		zap.String("reservation_id", res.ID),
		zap.String("status", string(status)),
		zap.Int("quantity", res.Quantity),
	)
	return nil
}

func (uc *inventoryUseCase) ReleaseByReference(ctx context.Context, referenceType, referenceID string) (int, error) {
	return uc.settleByReference(ctx, referenceType, referenceID, uc.Release)
}

func (uc *inventoryUseCase) CommitByReference(ctx context.Context, referenceType, referenceID string) (int, error) {
	return uc.settleByReference(ctx, referenceType, referenceID, uc.Commit)
}

func (uc *inventoryUseCase) settleByReference(ctx context.Context, referenceType, referenceID string, settle func(context.Context, string) (bool, error)) (int, error) {
	if referenceType == "" || referenceID == "" {
		return 0, fmt.Errorf("%w: reference type and id are required", inventory.ErrInvalidInput)
	}

	reservations, err := uc.repo.ListActiveReservationsByReference(ctx, referenceType, referenceID)
	if err != nil {
		return 0, err
	}

	settled := 0
	var errs []error
	for _, res := range reservations {
		ok, err := settle(ctx, res.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reservation %s: %w", res.ID, err))
			continue
		}
		if ok {
			settled++
		}
	}
	return settled, errors.Join(errs...)
}

// ExpireReservations releases active reservations whose expiry is at or before now.
// The sweep is driven by the caller; failures are counted, not fatal.
func (uc *inventoryUseCase) ExpireReservations(ctx context.Context, now time.Time) (result *dto.ExpireResult, err error) {
	ctx, span := uc.startSpan(ctx, "ExpireReservations")
	defer func() { endSpan(span, err) }()

	expired, err := uc.repo.ListExpiredReservations(ctx, now, uc.opts.ExpireBatchSize)
	if err != nil {
		return nil, err
	}

	result = &dto.ExpireResult{}
	for _, res := range expired {
		released, err := uc.Release(ctx, res.ID)
		switch {
		case err != nil:
			result.Failed++
			uc.logger.Error("failed to release expired reservation",
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
		case released:
			result.Released++
		default:
			// Settled by someone else since the listing.
			result.Skipped++
		}
	}

	if len(expired) > 0 {
		uc.logger.Info("expired reservations swept",
			zap.Int("released", result.Released),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed),
		)
	}
	return result, nil
}
