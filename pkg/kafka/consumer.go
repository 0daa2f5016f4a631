package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
)

// MessageHandler processes one record. A non-nil error leaves the offset
// uncommitted.
type MessageHandler func(ctx context.Context, key, value []byte) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
}

// NewConsumer reads cfg.Topic as member of cfg.ConsumerGroup. fromStart
// replays the log for a group with no committed offset.
func NewConsumer(cfg config.KafkaConfig, fromStart bool, handler MessageHandler) *Consumer {
	start := kafka.LastOffset
	if fromStart {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: start,
	})
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", cfg.Topic),
		handler: handler,
	}
}

// Run consumes until ctx is cancelled and then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", "offset", msg.Offset, "error", err)
		}
	}
}

// DecodeJSON unmarshals a record value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
