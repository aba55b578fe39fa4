package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
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

func TestPublishWritesJSONMessage(t *testing.T) {
	writer := &recordingWriter{}
	producer := NewProducer(writer, time.Second, zap.NewNop())

	event := NewStockChanged(7, 1, 2, -3, 12, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, producer.Publish(context.Background(), "product-1", event))

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "product-1", string(writer.messages[0].Key))

	var decoded StockChangedEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	assert.Equal(t, int32(-3), decoded.Quantity)
	assert.Equal(t, int32(12), decoded.StockInWarehouse)
	assert.NotEmpty(t, decoded.EventID)

	require.NoError(t, producer.Close())
	assert.True(t, writer.closed)
}

func TestPublishReturnsWriterError(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	producer := NewProducer(writer, 0, zap.NewNop())

	err := producer.Publish(context.Background(), "k", NewEmailRequested("a@b.c", "Hi", "welcome", nil))
	assert.EqualError(t, err, "broker down")
}
