// Package collector forwards analytics events to Kafka in batches so other
// tools can consume a shared search log.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/kafka"
)

// Publisher writes a batch of events. *kafka.Producer implements it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

type keyed interface {
	Key() string
}

// BatchCollector accumulates events and flushes them either when the batch
// reaches batchSize or after flushInterval, whichever comes first. It is an
// analytics.Sink.
type BatchCollector struct {
	publisher     Publisher
	mu            sync.Mutex
	flushMu       sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	done          chan struct{}
}

func NewBatchCollector(publisher Publisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop, which runs until ctx is
// cancelled and then performs a final flush.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				bc.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// Deliver buffers event and flushes synchronously once a batch is full.
func (bc *BatchCollector) Deliver(ctx context.Context, event any) error {
	key := "analytics"
	if k, ok := event.(keyed); ok {
		key = k.Key()
	}
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, kafka.Event{Key: key, Value: event})
	shouldFlush := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if shouldFlush {
		bc.Flush(ctx)
	}
	return nil
}

// Close waits for the background flush loop to finish. The loop stops when
// the context passed to Start is cancelled.
func (bc *BatchCollector) Close() {
	<-bc.done
}

// BufferLen returns the current number of buffered events.
func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Flush publishes everything buffered so far. A failed batch is put back,
// bounded to three batches.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed",
			"batch_size", len(batch),
			"error", err,
		)
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		if limit := bc.batchSize * 3; len(bc.buffer) > limit {
			dropped := len(bc.buffer) - limit
			bc.buffer = bc.buffer[len(bc.buffer)-limit:]
			bc.logger.Warn("buffer overflow, oldest events dropped", "dropped", dropped)
		}
		bc.mu.Unlock()
		return
	}

	bc.logger.Debug("batch flushed", "events", len(batch))
}
