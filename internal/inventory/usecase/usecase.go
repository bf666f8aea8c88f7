package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"

type Options struct {
	// MaxRetries bounds attempts after a concurrent modification.
	MaxRetries      int
	RetryBackoff    time.Duration
	ReservationTTL  time.Duration
	BulkConcurrency int
	SyncLockTTL     time.Duration
	ExpireBatchSize int
	Clock           func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 20 * time.Millisecond
	}
	if o.ReservationTTL <= 0 {
		o.ReservationTTL = 30 * time.Minute
	}
	if o.BulkConcurrency <= 0 {
		o.BulkConcurrency = 8
	}
	if o.SyncLockTTL <= 0 {
		o.SyncLockTTL = 5 * time.Minute
	}
	if o.ExpireBatchSize <= 0 {
		o.ExpireBatchSize = 500
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type inventoryUseCase struct {
	repo      inventory.Repository
	cache     inventory.RecordCache
	locker    inventory.Locker
	publisher inventory.EventPublisher
	logger    logger.ZapLogger
	validate  *validator.Validate
	tracer    trace.Tracer
	opts      Options
}

// NewInventoryUseCase wires the ledger services. cache, locker and publisher are optional.
func NewInventoryUseCase(
	repo inventory.Repository,
	cache inventory.RecordCache,
	locker inventory.Locker,
	publisher inventory.EventPublisher,
	log logger.ZapLogger,
	opts Options,
) inventory.UseCase {
	return &inventoryUseCase{
		repo:      repo,
		cache:     cache,
		locker:    locker,
		publisher: publisher,
		logger:    log,
		validate:  validator.New(),
		tracer:    otel.Tracer(tracerName),
		opts:      opts.withDefaults(),
	}
}

func (uc *inventoryUseCase) now() time.Time {
	return uc.opts.Clock()
}

// withRetry reruns fn while it loses optimistic-concurrency races, up to MaxRetries attempts.
func (uc *inventoryUseCase) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= uc.opts.MaxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, inventory.ErrConcurrentModification) {
			return err
		}
		uc.logger.Debug("concurrent modification, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
		)
		if attempt == uc.opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * uc.opts.RetryBackoff):
		}
	}
	return fmt.Errorf("%s: gave up after %d attempts: %w", op, uc.opts.MaxRetries, err)
}

// afterWrite drops the cached record and announces the movements. Both are best effort:
// the ledger is already committed.
func (uc *inventoryUseCase) afterWrite(ctx context.Context, rec *model.InventoryRecord, movements []model.Movement) {
	if uc.cache != nil {
		if err := uc.cache.Invalidate(ctx, rec.Key(), rec.Version); err != nil {
			uc.logger.Warn("failed to invalidate inventory cache", zap.String("inventory_id", rec.ID), zap.Error(err))
		}
	}
	if uc.publisher != nil && len(movements) > 0 {
		if err := uc.publisher.PublishMovements(ctx, rec, movements); err != nil {
			uc.logger.Error("failed to publish movements",
				zap.String("inventory_id", rec.ID),
				zap.Int("movements", len(movements)),
				zap.Error(err),
			)
		}
	}
}

func (uc *inventoryUseCase) validateInput(ctx context.Context, input interface{}) error {
	if err := uc.validate.StructCtx(ctx, input); err != nil {
		return fmt.Errorf("%w: %v", inventory.ErrInvalidInput, err)
	}
	return nil
}

func (uc *inventoryUseCase) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return uc.tracer.Start(ctx, "inventory."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, inventory.ErrNoOpAdjustment) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// actorPtr prefers an explicit actor over the one carried by the request.
func actorPtr(ctx context.Context, explicit string) *string {
	if explicit != "" {
		return &explicit
	}
	if id := auth.GetActorID(ctx); id != "" {
		return &id
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
