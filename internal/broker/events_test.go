package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"bridal-order-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	key       string
	eventType string
	event     interface{}
}

type fakeWriter struct {
	sent []sentEvent
	err  error
}

func (w *fakeWriter) PublishEvent(_ context.Context, key, eventType string, event interface{}) error {
	w.sent = append(w.sent, sentEvent{key: key, eventType: eventType, event: event})
	return w.err
}

func TestEventPublisherKeysByOrder(t *testing.T) {
	w := &fakeWriter{}
	ep := &EventPublisher{producer: w}
	ctx := context.Background()

	require.NoError(t, ep.PublishOrderStatusChanged(ctx, &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderStatusChanged},
		OrderID:   7,
		From:      models.OrderStatusShipped,
		To:        models.OrderStatusDelivered,
	}))
	require.NoError(t, ep.PublishInventoryAdjusted(ctx, &models.InventoryAdjustedEvent{
		BaseEvent: models.BaseEvent{EventID: "e2", EventType: models.EventTypeInventoryAdjusted},
		OrderID:   7,
	}))

	require.Len(t, w.sent, 2)
	assert.Equal(t, "order-7", w.sent[0].key)
	assert.Equal(t, models.EventTypeOrderStatusChanged, w.sent[0].eventType)
	assert.Equal(t, "order-7", w.sent[1].key)
	assert.Equal(t, models.EventTypeInventoryAdjusted, w.sent[1].eventType)

	w.err = errors.New("broker down")
	assert.Error(t, ep.PublishPaymentConfirmed(ctx, &models.PaymentConfirmedEvent{OrderID: 7}))
}

func TestEventHandlerRoutesInventoryAdjusted(t *testing.T) {
	event := models.InventoryAdjustedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeInventoryAdjusted, Timestamp: time.Now()},
		OrderID:   7,
		Kind:      models.AdjustmentDelivery,
		Products:  []models.ProductStock{{ProductID: 5, StockQuantity: 8, Status: models.ProductStatusInStock}},
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.InventoryAdjustedEvent
	h := NewEventHandler()
	h.OnInventoryAdjusted(func(_ context.Context, e *models.InventoryAdjustedEvent) error {
		got = e
		return nil
	})

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, event.Products, got.Products)
}

func TestEventHandlerPropagatesHandlerError(t *testing.T) {
	value, err := json.Marshal(models.InventoryAdjustedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-2", EventType: models.EventTypeInventoryAdjusted},
	})
	require.NoError(t, err)

	h := NewEventHandler()
	h.OnInventoryAdjusted(func(context.Context, *models.InventoryAdjustedEvent) error {
		return errors.New("redis down")
	})
	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
}

func TestEventHandlerSkipsUnknownAndMalformed(t *testing.T) {
	h := NewEventHandler()
	called := false
	h.OnInventoryAdjusted(func(context.Context, *models.InventoryAdjustedEvent) error {
		called = true
		return nil
	})

	ctx := context.Background()
	assert.NoError(t, h.HandleMessage(ctx, kafka.Message{Value: []byte("{not json")}))
	assert.NoError(t, h.HandleMessage(ctx, kafka.Message{Value: []byte(`{"event_type":"ORDER_CREATED","event_id":"x"}`)}))
	assert.False(t, called)
}
