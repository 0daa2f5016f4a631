// Package metrics defines the Prometheus collectors for the search engine and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	RebuildsTotal        *prometheus.CounterVec
	RebuildDuration      prometheus.Histogram
	IndexedDocs          prometheus.Gauge
	IndexedTerms         prometheus.Gauge
	SkippedDocsTotal     prometheus.Counter
	AnalyticsDropped     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. A nil reg means
// the global default registry.
func New(reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 200},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		RebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_rebuilds_total",
				Help: "Total index rebuilds by status.",
			},
			[]string{"status"},
		),
		RebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_rebuild_duration_seconds",
				Help:    "Duration of successful index rebuilds in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
			},
		),
		IndexedDocs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Documents in the published index snapshot.",
			},
		),
		IndexedTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct terms in the published index snapshot.",
			},
		),
		SkippedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_skipped_documents_total",
				Help: "Total eligible files left out of a build because they failed to load.",
			},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "analytics_events_dropped_total",
				Help: "Search events dropped because the collector buffer was full.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.RebuildsTotal,
		m.RebuildDuration,
		m.IndexedDocs,
		m.IndexedTerms,
		m.SkippedDocsTotal,
		m.AnalyticsDropped,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveRebuild records one build attempt.
func (m *Metrics) ObserveRebuild(docs, terms, skipped int, took time.Duration, err error) {
	if err != nil {
		m.RebuildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RebuildsTotal.WithLabelValues("ok").Inc()
	m.RebuildDuration.Observe(took.Seconds())
	m.IndexedDocs.Set(float64(docs))
	m.IndexedTerms.Set(float64(terms))
	m.SkippedDocsTotal.Add(float64(skipped))
}

// ObserveSearch records one served query.
func (m *Metrics) ObserveSearch(results int, cacheHit bool, took time.Duration, err error) {
	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
	switch {
	case err != nil:
		m.SearchQueriesTotal.WithLabelValues("error").Inc()
		return
	case results == 0:
		m.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
	default:
		m.SearchQueriesTotal.WithLabelValues("hit").Inc()
	}
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(took.Seconds())
	m.SearchResultsCount.Observe(float64(results))
}

// Handler returns the Prometheus scrape HTTP handler for the registry m
// was created with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
