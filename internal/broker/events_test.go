package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	messages map[string][]byte
}

func (r *recordingSink) PublishEvent(_ context.Context, key string, event interface{}) error {
	msg, err := encodeMessage(key, event)
	if err != nil {
		return err
	}
	r.messages[key] = msg.Value
	return nil
}

func TestPublishOrderPlacedRoundTrip(t *testing.T) {
	sink := &recordingSink{messages: map[string][]byte{}}
	pub := NewEventPublisher(sink)

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		OrderID:     12,
		ShopperID:   3,
		TotalAmount: decimal.RequireFromString("24.99"),
		Items: []models.OrderItemData{
			{ProductID: 7, Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
		},
	}
	require.NoError(t, pub.PublishOrderPlaced(context.Background(), event))

	value, ok := sink.messages["order-12"]
	require.True(t, ok)

	handler := NewEventHandler()
	var got *models.OrderPlacedEvent
	handler.OnOrderPlaced(func(_ context.Context, e *models.OrderPlacedEvent) error {
		got = e
		return nil
	})

	msg, err := encodeMessage("order-12", json.RawMessage(value))
	require.NoError(t, err)
	require.NoError(t, handler.HandleMessage(context.Background(), msg))

	require.NotNil(t, got)
	assert.Equal(t, int64(12), got.OrderID)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("24.99")))
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(7), got.Items[0].ProductID)
}

func TestHandleStatusChanged(t *testing.T) {
	handler := NewEventHandler()
	var got *models.OrderStatusChangedEvent
	handler.OnOrderStatusChanged(func(_ context.Context, e *models.OrderStatusChangedEvent) error {
		got = e
		return nil
	})

	msg, err := encodeMessage("order-5", &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "e", EventType: models.EventTypeOrderStatusChanged},
		OrderID:   5,
		OldStatus: models.OrderStatusPending,
		NewStatus: models.OrderStatusShipped,
	})
	require.NoError(t, err)
	require.NoError(t, handler.HandleMessage(context.Background(), msg))

	require.NotNil(t, got)
	assert.Equal(t, models.OrderStatusShipped, got.NewStatus)
}

func TestHandleMessageIgnoresUnknownAndRejectsGarbage(t *testing.T) {
	handler := NewEventHandler()

	msg, err := encodeMessage("k", models.BaseEvent{EventType: "SOMETHING_ELSE"})
	require.NoError(t, err)
	assert.NoError(t, handler.HandleMessage(context.Background(), msg))

	msg.Value = []byte("{not json")
	assert.Error(t, handler.HandleMessage(context.Background(), msg))
}
