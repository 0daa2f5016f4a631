package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives every tracked event from the collector goroutine.
type Sink interface {
	Deliver(ctx context.Context, event any) error
}

// Collector decouples request handling from event delivery: Track never
// blocks and drops events when the buffer is full.
type Collector struct {
	sinks   []Sink
	eventCh chan any
	logger  *slog.Logger
	done    chan struct{}
	dropped atomic.Int64
	onDrop  func()

	mu     sync.RWMutex
	closed bool
}

func NewCollector(bufferSize int, sinks ...Sink) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Collector{
		sinks:   sinks,
		eventCh: make(chan any, bufferSize),
		logger:  slog.Default().With("component", "analytics-collector"),
		done:    make(chan struct{}),
	}
}

// OnDrop registers fn to be called for every dropped event. Call before Start.
func (c *Collector) OnDrop(fn func()) {
	c.onDrop = fn
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.deliver(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh), "sinks", len(c.sinks))
}

// Track queues event for delivery. Calls after Close are ignored.
func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
		if c.onDrop != nil {
			c.onDrop()
		}
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Dropped returns the number of events lost to a full buffer.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for buffered ones to be delivered.
// Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.eventCh)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) deliver(ctx context.Context, event any) {
	for _, sink := range c.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			c.logger.Error("failed to deliver analytics event", "error", err)
		}
	}
}

func (c *Collector) drainRemaining() {
	ctx := context.Background()
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.deliver(ctx, event)
		default:
			return
		}
	}
}
