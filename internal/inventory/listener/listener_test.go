package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-inventory-service/internal/model"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	done      chan struct{}
	drained   sync.Once
}

func (c *fakeConsumer) FetchMessage(ctx context.Context) (kafka.Message, error) {
	c.mu.Lock()
	if len(c.messages) > 0 {
		msg := c.messages[0]
		c.messages = c.messages[1:]
		c.mu.Unlock()
		return msg, nil
	}
	c.mu.Unlock()
	c.drained.Do(func() { close(c.done) })
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (c *fakeConsumer) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range msgs {
		c.committed = append(c.committed, msg.Offset)
	}
	return nil
}

func (c *fakeConsumer) commits() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.committed...)
}

// flakyUseCase fails the first failures catalog syncs with err; a negative count fails forever.
type flakyUseCase struct {
	inventory.UseCase
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (u *flakyUseCase) SyncFromCatalog(ctx context.Context, items []dto.CatalogItem) (*dto.SyncResult, error) {
	u.mu.Lock()
	u.calls++
	if u.failures != 0 {
		u.failures--
		u.mu.Unlock()
		return nil, u.err
	}
	u.mu.Unlock()
	return u.UseCase.SyncFromCatalog(ctx, items)
}

func (u *flakyUseCase) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

// runUntilDrained starts l and stops it once the consumer has nothing left to hand out.
func runUntilDrained(t *testing.T, l *InventoryListener, consumer *fakeConsumer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(stopped)
	}()

	select {
	case <-consumer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not drain the consumer")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func event(t *testing.T, eventType string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	value, err := json.Marshal(Event{
		EventID:   "evt-1",
		EventType: eventType,
		Payload:   raw,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	return value
}

func newTestListener(t *testing.T, consumer MessageReader) (*InventoryListener, inventory.UseCase, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	uc := usecase.NewInventoryUseCase(repo, nil, nil, nil, logger.NewNop(), usecase.Options{
		RetryBackoff: time.Millisecond,
	})
	return NewInventoryListener(consumer, uc, logger.NewNop()), uc, repo
}

func TestProductUpsertedSyncsVariants(t *testing.T) {
	ctx := context.Background()
	l, _, repo := newTestListener(t, nil)

	err := l.ProcessMessage(ctx, event(t, EventProductUpserted, ProductPayload{
		ID: "tee", Name: "Tee", SKU: "TEE", Stock: 3, ReorderLevel: 2,
		Variants: []VariantPayload{{ID: "red", Name: "Red", SKU: "TEE-R", Stock: 7}},
	}))
	require.NoError(t, err)

	base, err := repo.GetByKey(ctx, model.NewRecordKey("tee", nil))
	require.NoError(t, err)
	assert.Equal(t, 3, base.StockLevel)

	red := "red"
	variant, err := repo.GetByKey(ctx, model.NewRecordKey("tee", &red))
	require.NoError(t, err)
	assert.Equal(t, 7, variant.StockLevel)
	assert.Equal(t, "Tee - Red", variant.ProductName)
	assert.Equal(t, 2, variant.ReorderLevel)
}

func TestOrderEventsSettleReservations(t *testing.T) {
	ctx := context.Background()
	l, uc, repo := newTestListener(t, nil)
	_, err := uc.SyncFromCatalog(ctx, []dto.CatalogItem{{ProductID: "p1", Stock: 10}})
	require.NoError(t, err)

	reserve := func(refType, refID string, qty int) *model.Reservation {
		res, err := uc.Reserve(ctx, &dto.ReserveInput{ProductID: "p1", Quantity: qty, ReferenceType: refType, ReferenceID: refID})
		require.NoError(t, err)
		return res
	}
	paid := reserve("order", "o-1", 2)
	cancelled := reserve("order", "o-2", 3)
	abandoned := reserve("cart", "c-1", 1)

	require.NoError(t, l.ProcessMessage(ctx, event(t, EventOrderPaid, ReferencePayload{ID: "o-1"})))
	require.NoError(t, l.ProcessMessage(ctx, event(t, EventOrderCancelled, ReferencePayload{ID: "o-2"})))
	require.NoError(t, l.ProcessMessage(ctx, event(t, EventCartAbandoned, ReferencePayload{ID: "c-1"})))

	for id, want := range map[string]model.ReservationStatus{
		paid.ID:      model.ReservationCommitted,
		cancelled.ID: model.ReservationReleased,
		abandoned.ID: model.ReservationReleased,
	} {
		res, err := repo.GetReservation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, res.Status)
	}

	rec, err := repo.GetByKey(ctx, model.NewRecordKey("p1", nil))
	require.NoError(t, err)
	assert.Equal(t, 8, rec.StockLevel)
	assert.Equal(t, 0, rec.ReservedQuantity)

	require.NoError(t, l.ProcessMessage(ctx, event(t, EventOrderPaid, ReferencePayload{ID: "o-1"})), "redelivery is harmless")
}

func TestProcessMessageRejectsBadInput(t *testing.T) {
	l, _, _ := newTestListener(t, nil)
	ctx := context.Background()

	err := l.ProcessMessage(ctx, []byte("not json"))
	assert.Error(t, err)

	err = l.ProcessMessage(ctx, event(t, "product.deleted", map[string]string{"id": "x"}))
	assert.True(t, errors.Is(err, errUnknownEvent))

	err = l.ProcessMessage(ctx, event(t, EventOrderPaid, ReferencePayload{}))
	assert.ErrorIs(t, err, inventory.ErrInvalidInput)
}

func TestStartConsumesUntilCancelled(t *testing.T) {
	consumer := &fakeConsumer{done: make(chan struct{})}
	l, _, repo := newTestListener(t, consumer)
	consumer.messages = []kafka.Message{
		{Topic: "catalog.events", Offset: 1, Value: []byte("garbage")},
		{Topic: "catalog.events", Offset: 2, Value: event(t, EventProductUpserted, ProductPayload{ID: "mug", Stock: 4})},
		{Topic: "catalog.events", Offset: 3, Value: event(t, EventProductUpserted, ProductPayload{ID: "bad", Stock: -1})},
	}

	runUntilDrained(t, l, consumer)

	rec, err := repo.GetByKey(context.Background(), model.NewRecordKey("mug", nil))
	require.NoError(t, err)
	assert.Equal(t, 4, rec.StockLevel)
	assert.Equal(t, []int64{1, 2, 3}, consumer.commits(), "rejected messages are committed, not retried")
}

func TestStartRetriesRetryableFailuresBeforeCommitting(t *testing.T) {
	for name, cause := range map[string]error{
		"sync in progress":  inventory.ErrSyncInProgress,
		"concurrent writer": inventory.ErrConcurrentModification,
		"store unavailable": errors.New("connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			consumer := &fakeConsumer{done: make(chan struct{})}
			_, inner, repo := newTestListener(t, consumer)
			uc := &flakyUseCase{UseCase: inner, failures: 2, err: cause}
			l := NewInventoryListener(consumer, uc, logger.NewNop()).WithRetryBackoff(time.Millisecond)
			consumer.messages = []kafka.Message{
				{Topic: "catalog.events", Offset: 7, Value: event(t, EventProductUpserted, ProductPayload{ID: "mug", Stock: 4})},
			}

			runUntilDrained(t, l, consumer)

			assert.Equal(t, 3, uc.callCount())
			assert.Equal(t, []int64{7}, consumer.commits())
			rec, err := repo.GetByKey(context.Background(), model.NewRecordKey("mug", nil))
			require.NoError(t, err)
			assert.Equal(t, 4, rec.StockLevel)
		})
	}
}

func TestStartLeavesOffsetUncommittedWhenStoppedMidRetry(t *testing.T) {
	consumer := &fakeConsumer{done: make(chan struct{})}
	_, inner, _ := newTestListener(t, consumer)
	uc := &flakyUseCase{UseCase: inner, failures: -1, err: inventory.ErrSyncInProgress}
	l := NewInventoryListener(consumer, uc, logger.NewNop()).WithRetryBackoff(time.Millisecond)
	consumer.messages = []kafka.Message{
		{Topic: "catalog.events", Offset: 3, Value: event(t, EventProductUpserted, ProductPayload{ID: "mug", Stock: 4})},
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		l.Start(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return uc.callCount() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.Empty(t, consumer.commits())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(inventory.ErrSyncInProgress))
	assert.True(t, retryable(fmt.Errorf("sync: gave up after 3 attempts: %w", inventory.ErrConcurrentModification)))
	assert.True(t, retryable(errors.New("dial tcp: connection refused")))
	assert.False(t, retryable(fmt.Errorf("%w: x", errUnknownEvent)))
	assert.False(t, retryable(fmt.Errorf("%w: bad json", errMalformedEvent)))
	assert.False(t, retryable(inventory.ErrInvalidInput))

	settlement := fmt.Errorf("order.paid o-1: %w", errors.Join(
		fmt.Errorf("reservation a: %w", inventory.ErrInvalidState),
		fmt.Errorf("reservation b: %w", errors.New("i/o timeout")),
	))
	assert.True(t, retryable(settlement))

	settlement = fmt.Errorf("order.paid o-1: %w", errors.Join(
		fmt.Errorf("reservation a: %w", inventory.ErrInvalidState),
	))
	assert.False(t, retryable(settlement))
}
