package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}

type KafkaProducer struct {
	writer  MessageWriter
	logger  *zap.Logger
	timeout time.Duration
}

func NewKafkaProducer(brokers, topic string, timeout time.Duration, logger *zap.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return NewProducer(writer, timeout, logger)
}

func NewProducer(writer MessageWriter, timeout time.Duration, logger *zap.Logger) *KafkaProducer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaProducer{
		writer:  writer,
		logger:  logger,
		timeout: timeout,
	}
}

func (p *KafkaProducer) Publish(ctx context.Context, key string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.String("key", key), zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message", zap.String("key", key), zap.Error(err))
		return err
	}

	p.logger.Debug("Event published", zap.String("key", key))
	return nil
}

func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
