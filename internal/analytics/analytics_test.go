package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func search(query string, hits int, latency float64, cacheHit bool, terms ...string) SearchEvent {
	return SearchEvent{
		Type:      EventSearch,
		Query:     query,
		Terms:     terms,
		TotalHits: hits,
		LatencyMs: latency,
		CacheHit:  cacheHit,
		Timestamp: time.Now(),
	}
}

func TestAggregator_Stats(t *testing.T) {
	agg := NewAggregator()
	ctx := context.Background()

	require.NoError(t, agg.Deliver(ctx, search("apple", 2, 1, false, "apple")))
	require.NoError(t, agg.Deliver(ctx, search("apple", 2, 3, true, "apple")))
	require.NoError(t, agg.Deliver(ctx, search("durian", 0, 2, false, "durian")))
	require.NoError(t, agg.Deliver(ctx, RebuildEvent{Type: EventRebuild, Documents: 3}))
	require.NoError(t, agg.Deliver(ctx, RebuildEvent{Type: EventRebuild, Error: "root gone"}))
	require.NoError(t, agg.Deliver(ctx, "unknown"))

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(2), stats.TotalRebuilds)
	assert.Equal(t, int64(1), stats.FailedRebuilds)
	require.NotNil(t, stats.LastRebuild)
	assert.Equal(t, "root gone", stats.LastRebuild.Error)
	assert.InDelta(t, 2.0, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, 2.0, stats.P50LatencyMs)
	assert.Equal(t, []QueryCount{{"apple", 2}, {"durian", 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{"durian", 1}}, stats.ZeroResultQueries)
	assert.Equal(t, []QueryCount{{"apple", 2}, {"durian", 1}}, stats.TopTerms)
}

func TestAggregator_LatencyWindowBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+10; i++ {
		_ = agg.Deliver(context.Background(), search("q", 1, float64(i), false))
	}
	agg.mu.RLock()
	defer agg.mu.RUnlock()
	assert.Len(t, agg.latencies, latencyWindow)
}

func TestAggregator_Seed(t *testing.T) {
	agg := NewAggregator()
	agg.Seed(AggregatedStats{TotalSearches: 10, TopQueries: []QueryCount{{"apple", 4}}})
	_ = agg.Deliver(context.Background(), search("apple", 1, 1, false))

	stats := agg.Stats()
	assert.Equal(t, int64(11), stats.TotalSearches)
	assert.Equal(t, QueryCount{"apple", 5}, stats.TopQueries[0])
}

type recordingSink struct {
	mu     sync.Mutex
	events []any
	err    error
}

func (s *recordingSink) Deliver(_ context.Context, event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestCollector_FansOutToSinks(t *testing.T) {
	first := &recordingSink{}
	failing := &recordingSink{err: errors.New("sink down")}
	c := NewCollector(8, first, failing)
	c.Start(context.Background())

	c.Track(search("a", 1, 1, false))
	c.Track(RebuildEvent{Type: EventRebuild})
	c.Close()

	assert.Equal(t, 2, first.len())
	assert.Equal(t, 2, failing.len())
}

func TestCollector_DropsWhenFull(t *testing.T) {
	sink := &recordingSink{}
	c := NewCollector(1, sink)
	var dropped int
	c.OnDrop(func() { dropped++ })

	c.Track(search("a", 1, 1, false))
	c.Track(search("b", 1, 1, false))
	assert.Equal(t, int64(1), c.Dropped())
	assert.Equal(t, 1, dropped)

	c.Start(context.Background())
	c.Close()
	assert.Equal(t, 1, sink.len())
}

func TestCollector_DrainsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	c := NewCollector(8, sink)
	c.Track(search("a", 1, 1, false))
	c.Track(search("b", 1, 1, false))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Start(ctx)
	c.Close()
	assert.Equal(t, 2, sink.len())
}

type fakeHistory struct {
	snapshots []AggregatedStats
	limit     int
}

func (f *fakeHistory) ListSnapshots(_ context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snapshots, nil
}

func TestHandler(t *testing.T) {
	agg := NewAggregator()
	_ = agg.Deliver(context.Background(), search("apple", 1, 1, false))

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, nil).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var got AggregatedStats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, int64(1), got.TotalSearches)
	})

	t.Run("history disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, nil).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("history", func(t *testing.T) {
		hist := &fakeHistory{snapshots: []AggregatedStats{{TotalSearches: 4}}}
		rec := httptest.NewRecorder()
		NewHandler(agg, hist).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=5", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, hist.limit)
		var got []AggregatedStats
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		require.Len(t, got, 1)
	})

	t.Run("history bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHandler(agg, &fakeHistory{}).History(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/history?limit=x", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCollector_TrackAfterCloseIsIgnored(t *testing.T) {
	sink := &recordingSink{}
	c := NewCollector(4, sink)
	c.Start(context.Background())
	c.Close()

	assert.NotPanics(t, func() { c.Track(search("late", 1, 1, false)) })
	assert.Equal(t, 0, sink.len())
	c.Close()
}
