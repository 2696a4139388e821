package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON messages keyed by conversation ID.
type KafkaSink struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaSink returns a sink backed by an asynchronous kafka.Writer.
func NewKafkaSink(cfg KafkaConfig, logger *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires brokers and topic")
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("Failed to publish analytics events", "count", len(msgs), "error", err)
			}
		},
	}
	return newKafkaSink(w, logger), nil
}

func newKafkaSink(w messageWriter, logger *slog.Logger) *KafkaSink {
	return &KafkaSink{writer: w, logger: logger}
}

// RecordEvent implements Sink.
func (s *KafkaSink) RecordEvent(ctx context.Context, name string, attrs Attrs) {
	ev := newEvent(name, attrs)
	body, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("Failed to marshal analytics event", "event", name, "error", err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(attrs.str("conversation_id")),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(name)},
		},
	}
	if err := s.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		s.logger.Warn("Failed to enqueue analytics event", "event", name, "error", err)
	}
}

// Close flushes pending messages.
func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
