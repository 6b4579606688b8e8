package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storefront/internal/services"
)

var _ services.OrderEventPublisher = (*KafkaOrderEventPublisher)(nil)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaOrderEventPublisherKeysByOrder(t *testing.T) {
	writer := &recordingWriter{}
	publisher, err := NewKafkaOrderEventPublisher(writer)
	require.NoError(t, err)

	occurred := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{
		Type:       services.OrderEventRefundChanged,
		OrderID:    "ord_9",
		OccurredAt: occurred,
		Metadata:   map[string]any{"refundStatus": "partial"},
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "ord_9", string(msg.Key))
	assert.Equal(t, occurred, msg.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "eventType", Value: []byte(services.OrderEventRefundChanged)},
		{Key: "orderId", Value: []byte("ord_9")},
	}, msg.Headers)

	var payload eventMessage
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, "partial", payload.Metadata["refundStatus"])

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaOrderEventPublisherCouponEventKeyedByType(t *testing.T) {
	writer := &recordingWriter{}
	publisher, err := NewKafkaOrderEventPublisher(writer)
	require.NoError(t, err)

	require.NoError(t, publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: services.CouponEventRedeemed}))
	assert.Equal(t, services.CouponEventRedeemed, string(writer.messages[0].Key))
}

func TestKafkaOrderEventPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	publisher, err := NewKafkaOrderEventPublisher(&recordingWriter{err: boom})
	require.NoError(t, err)

	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: services.OrderEventCreated, OrderID: "ord_1"})
	assert.ErrorIs(t, err, boom)
}

func TestNewKafkaWriter(t *testing.T) {
	writer := NewKafkaWriter([]string{"localhost:9092"}, "order-events")
	assert.Equal(t, "order-events", writer.Topic)
	assert.Equal(t, kafka.RequireOne, writer.RequiredAcks)
}
