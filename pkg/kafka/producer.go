// Package kafka wraps segmentio/kafka-go for the search event log. The
// producer writes JSON events keyed for partitioning; the consumer tails the
// log and hands each record to a callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
)

// Event is one record on the log. Key picks the partition; Value is
// marshalled to JSON.
type Event struct {
	Key   string
	Value any
}

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer writes to cfg.Topic unless topic is non-empty.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	if topic == "" {
		topic = cfg.Topic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
		// Topics are created on first write so a fresh local broker works.
		AllowAutoTopicCreation: true,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in a single call. Nothing is written if any
// value fails to marshal.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	messages, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch", "count", len(messages), "error", err)
		return fmt.Errorf("publishing %d events to kafka: %w", len(messages), err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(event.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event %q: %w", event.Key, err)
		}
		messages = append(messages, kafka.Message{Key: []byte(event.Key), Value: value})
	}
	return messages, nil
}
