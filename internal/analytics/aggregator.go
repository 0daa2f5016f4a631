package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// latencyWindow bounds the samples kept for percentile estimates.
const latencyWindow = 10000

type AggregatedStats struct {
	TotalSearches     int64         `json:"total_searches"`
	TotalRebuilds     int64         `json:"total_rebuilds"`
	FailedRebuilds    int64         `json:"failed_rebuilds"`
	CacheHits         int64         `json:"cache_hits"`
	CacheMisses       int64         `json:"cache_misses"`
	ZeroResultCount   int64         `json:"zero_result_count"`
	AvgLatencyMs      float64       `json:"avg_latency_ms"`
	P50LatencyMs      float64       `json:"p50_latency_ms"`
	P95LatencyMs      float64       `json:"p95_latency_ms"`
	P99LatencyMs      float64       `json:"p99_latency_ms"`
	TopQueries        []QueryCount  `json:"top_queries"`
	TopTerms          []QueryCount  `json:"top_terms"`
	ZeroResultQueries []QueryCount  `json:"zero_result_queries"`
	QueriesPerMinute  float64       `json:"queries_per_minute"`
	LastRebuild       *RebuildEvent `json:"last_rebuild,omitempty"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running search statistics in memory. It is a Sink.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	totalRebuilds     int64
	failedRebuilds    int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []float64
	next              int
	queryCounts       map[string]int64
	termCounts        map[string]int64
	zeroResultQueries map[string]int64
	lastRebuild       *RebuildEvent
	startTime         time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]float64, 0, 1024),
		queryCounts:       make(map[string]int64),
		termCounts:        make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

func (a *Aggregator) Deliver(_ context.Context, event any) error {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearchEvent(e)
	case RebuildEvent:
		a.recordRebuildEvent(e)
	default:
		a.logger.Debug("ignoring unknown event", "type", event)
	}
	return nil
}

// Seed adds totals from a previously persisted snapshot so counters survive
// restarts. Latency samples are not restored.
func (a *Aggregator) Seed(prev AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches += prev.TotalSearches
	a.totalRebuilds += prev.TotalRebuilds
	a.failedRebuilds += prev.FailedRebuilds
	a.cacheHits += prev.CacheHits
	a.cacheMisses += prev.CacheMisses
	a.zeroResults += prev.ZeroResultCount
	for _, q := range prev.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range prev.TopTerms {
		a.termCounts[q.Query] += q.Count
	}
	for _, q := range prev.ZeroResultQueries {
		a.zeroResultQueries[q.Query] += q.Count
	}
}

func (a *Aggregator) recordSearchEvent(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % latencyWindow
	}
	a.queryCounts[event.Query]++
	for _, term := range event.Terms {
		a.termCounts[term]++
	}
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) recordRebuildEvent(event RebuildEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalRebuilds++
	if event.Error != "" {
		a.failedRebuilds++
	}
	e := event
	a.lastRebuild = &e
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		TotalRebuilds:   a.totalRebuilds,
		FailedRebuilds:  a.failedRebuilds,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		LastRebuild:     a.lastRebuild,
	}
	if len(a.latencies) > 0 {
		sorted := make([]float64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Float64s(sorted)

		var sum float64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = sum / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopTerms = topN(a.termCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}

	return stats
}

func percentile(sorted []float64, pct int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
