package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	EventProductUpserted = "product.upserted"
	EventOrderPaid       = "order.paid"
	EventOrderCancelled  = "order.cancelled"
	EventCartAbandoned   = "cart.abandoned"

	referenceOrder = "order"
	referenceCart  = "cart"
)

const (
	defaultRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff     = 10 * time.Second
)

var (
	errUnknownEvent   = errors.New("unknown event type")
	errMalformedEvent = errors.New("malformed event")
)

// MessageReader hands out messages without committing them; the listener commits
// once a message is handled or can never succeed.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type InventoryListener struct {
	consumer MessageReader
	uc       inventory.UseCase
	logger   logger.ZapLogger
	backoff  time.Duration
}

func NewInventoryListener(consumer MessageReader, uc inventory.UseCase, logger logger.ZapLogger) *InventoryListener {
	return &InventoryListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
		backoff:  defaultRetryBackoff,
	}
}

// WithRetryBackoff sets the first delay between attempts on a retryable failure.
func (l *InventoryListener) WithRetryBackoff(d time.Duration) *InventoryListener {
	l.backoff = d
	return l
}

func (l *InventoryListener) Start(ctx context.Context) {
	l.logger.Info("Starting Inventory Kafka Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Inventory Kafka Listener")
			return
		default:
			msg, err := l.consumer.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to fetch kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			if !l.handle(ctx, msg) {
				// Stopped mid-retry; leave the offset for redelivery.
				return
			}
			if err := l.consumer.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				l.logger.Error("Failed to commit kafka message",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
		}
	}
}

// handle processes msg until it succeeds or fails permanently. It returns false only
// when ctx ends before that.
func (l *InventoryListener) handle(ctx context.Context, msg kafka.Message) bool {
	backoff := l.backoff
	for attempt := 1; ; attempt++ {
		err := l.ProcessMessage(ctx, msg.Value)
		if err == nil {
			return true
		}
		if !retryable(err) {
			if !errors.Is(err, errUnknownEvent) {
				l.logger.Error("Dropping kafka message",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			return true
		}

		l.logger.Warn("Retrying kafka message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
	}
}

// retryable reports whether err may clear up on its own. Contention and infrastructure
// failures do; bad payloads and business rule rejections never will.
func retryable(err error) bool {
	// A by-reference settlement fails per reservation; retry if any part can recover.
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			if retryable(e) {
				return true
			}
		}
		return false
	}
	if errors.Is(err, inventory.ErrConcurrentModification) || errors.Is(err, inventory.ErrSyncInProgress) {
		return true
	}
	for _, permanent := range []error{
		errUnknownEvent,
		errMalformedEvent,
		inventory.ErrNotFound,
		inventory.ErrInvalidInput,
		inventory.ErrInvalidState,
		inventory.ErrInsufficientStock,
		inventory.ErrReservationNotFound,
		inventory.ErrReservationSettled,
		inventory.ErrNoOpAdjustment,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

type Event struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type ProductPayload struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	SKU             string           `json:"sku"`
	Stock           int              `json:"stock"`
	ReorderLevel    int              `json:"reorder_level"`
	ReorderQuantity int              `json:"reorder_quantity"`
	Reset           bool             `json:"reset"`
	Variants        []VariantPayload `json:"variants"`
}

type VariantPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	SKU   string `json:"sku"`
	Stock int    `json:"stock"`
}

type ReferencePayload struct {
	ID string `json:"id"`
}

// ProcessMessage handles one event. Unknown event types are skipped.
func (l *InventoryListener) ProcessMessage(ctx context.Context, value []byte) error {
	var event Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}

	switch event.EventType {
	case EventProductUpserted:
		return l.handleProductUpserted(ctx, event)
	case EventOrderPaid:
		return l.settle(ctx, event, referenceOrder, l.uc.CommitByReference)
	case EventOrderCancelled:
		return l.settle(ctx, event, referenceOrder, l.uc.ReleaseByReference)
	case EventCartAbandoned:
		return l.settle(ctx, event, referenceCart, l.uc.ReleaseByReference)
	}
	return fmt.Errorf("%w: %s", errUnknownEvent, event.EventType)
}

func (l *InventoryListener) handleProductUpserted(ctx context.Context, event Event) error {
	var p ProductPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("%w: product payload: %v", errMalformedEvent, err)
	}

	items := []dto.CatalogItem{{
		ProductID:       p.ID,
		Name:            p.Name,
		SKU:             p.SKU,
		Stock:           p.Stock,
		ReorderLevel:    p.ReorderLevel,
		ReorderQuantity: p.ReorderQuantity,
		Reset:           p.Reset,
	}}
	for _, v := range p.Variants {
		variantID := v.ID
		name := p.Name
		if v.Name != "" {
			name = p.Name + " - " + v.Name
		}
		items = append(items, dto.CatalogItem{
			ProductID:       p.ID,
			VariantID:       &variantID,
			Name:            name,
			SKU:             v.SKU,
			Stock:           v.Stock,
			ReorderLevel:    p.ReorderLevel,
			ReorderQuantity: p.ReorderQuantity,
			Reset:           p.Reset,
		})
	}

	result, err := l.uc.SyncFromCatalog(ctx, items)
	if result == nil {
		return err
	}
	l.logger.Info("Processed product.upserted event",
		zap.String("product_id", p.ID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
	)
	return err
}

func (l *InventoryListener) settle(ctx context.Context, event Event, referenceType string, fn func(context.Context, string, string) (int, error)) error {
	var p ReferencePayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("%w: %s payload: %v", errMalformedEvent, event.EventType, err)
	}

	n, err := fn(ctx, referenceType, p.ID)
	if err != nil {
		return fmt.Errorf("%s %s: %w", event.EventType, p.ID, err)
	}
	l.logger.Info("Settled reservations",
		zap.String("event_type", event.EventType),
		zap.String("reference_id", p.ID),
		zap.Int("settled", n),
	)
	return nil
}
