package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (f *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestDeliver_FlushesFullBatch(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)

	require.NoError(t, bc.Deliver(context.Background(), analytics.SearchEvent{Type: analytics.EventSearch, Query: "a"}))
	assert.Equal(t, 1, bc.BufferLen())
	require.NoError(t, bc.Deliver(context.Background(), analytics.RebuildEvent{Type: analytics.EventRebuild}))

	assert.Equal(t, 0, bc.BufferLen())
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "search", pub.batches[0][0].Key)
	assert.Equal(t, "rebuild", pub.batches[0][1].Key)
}

func TestFlush_RequeuesOnFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	bc := NewBatchCollector(pub, 2, time.Hour)

	for i := 0; i < 10; i++ {
		_ = bc.Deliver(context.Background(), analytics.SearchEvent{Query: "q"})
	}
	assert.LessOrEqual(t, bc.BufferLen(), 6)

	pub.mu.Lock()
	pub.err = nil
	pub.mu.Unlock()
	bc.Flush(context.Background())
	assert.Equal(t, 0, bc.BufferLen())
	assert.Greater(t, pub.count(), 0)
}

func TestStart_FinalFlushOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)

	_ = bc.Deliver(ctx, analytics.SearchEvent{Query: "last"})
	cancel()
	bc.Close()
	assert.Equal(t, 1, pub.count())
}
