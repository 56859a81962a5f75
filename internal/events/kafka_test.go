package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/safar/go-sql-shop/internal/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer, logger: zap.NewNop()}

	order := &models.Order{ID: 42, OrderNumber: "ORD-1", UserID: 7, Status: models.OrderStatusPending, Total: 1250}
	event := NewOrderEvent(OrderCreated, order)

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order.created", string(msg.Headers[0].Value))

	var decoded OrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, OrderCreated, decoded.Type)
	assert.Equal(t, int64(1250), decoded.Total)
	assert.Equal(t, models.OrderStatusPending, decoded.Status)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	cause := errors.New("leader not available")
	publisher := &KafkaPublisher{writer: &fakeWriter{err: cause}, logger: zap.NewNop()}

	err := publisher.Publish(context.Background(), NewOrderEvent(OrderCancelled, &models.Order{ID: 1}))
	assert.ErrorIs(t, err, cause)
}
