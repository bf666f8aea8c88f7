package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const EventMovementRecorded = "inventory.movement.recorded"

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type MovementEvent struct {
	EventType         string           `json:"event_type"`
	InventoryID       string           `json:"inventory_id"`
	ProductID         string           `json:"product_id"`
	VariantID         *string          `json:"variant_id,omitempty"`
	StockLevel        int              `json:"stock_level"`
	ReservedQuantity  int              `json:"reserved_quantity"`
	AvailableQuantity int              `json:"available_quantity"`
	IsLowStock        bool             `json:"is_low_stock"`
	IsOutOfStock      bool             `json:"is_out_of_stock"`
	Movements         []model.Movement `json:"movements"`
	Timestamp         time.Time        `json:"timestamp"`
}

// KafkaPublisher writes one message per committed mutation, keyed by inventory id
// so a record's events stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishMovements(ctx context.Context, rec *model.InventoryRecord, movements []model.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	event := MovementEvent{
		EventType:         EventMovementRecorded,
		InventoryID:       rec.ID,
		ProductID:         rec.ProductID,
		VariantID:         rec.VariantID,
		StockLevel:        rec.StockLevel,
		ReservedQuantity:  rec.ReservedQuantity,
		AvailableQuantity: rec.AvailableQuantity(),
		IsLowStock:        rec.IsLowStock(),
		IsOutOfStock:      rec.IsOutOfStock(),
		Movements:         movements,
		Timestamp:         time.Now().UTC(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventMovementRecorded)},
		},
	})
}
