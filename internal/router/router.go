// Package router wires the search server's routes and middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/ratelimit"
)

// Deps are the components behind the routes. Nil optional fields switch the
// matching routes or middleware off.
type Deps struct {
	Search    *handler.Handler
	Health    *health.Checker
	Analytics *analytics.Handler
	Metrics   *metrics.Metrics
	// ServeMetrics mounts /metrics on this handler instead of a dedicated
	// listener.
	ServeMetrics   bool
	ReindexLimiter *ratelimit.Limiter
	Timeout        time.Duration
}

// New builds the server handler.
//
// Route table:
//
//	GET       /                          → embedded UI
//	GET       /api/v1/search             → ranked results
//	GET|POST  /api/v1/reindex            → forced rebuild (optionally throttled)
//	GET       /api/v1/status             → snapshot status
//	GET       /api/v1/raw                → raw file bytes
//	GET       /api/v1/cache/stats        → cache counters
//	POST      /api/v1/cache/invalidate   → purge cache
//	GET       /api/v1/analytics          → live analytics
//	GET       /api/v1/analytics/history  → persisted snapshots
//	GET       /health/live, /health/ready
//	GET       /metrics
//
// Middleware chain (outermost first):
//
//	RequestID → CORS → Metrics → Timeout → mux
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	h := d.Search

	mux.HandleFunc("GET /{$}", h.UI)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/raw", h.Raw)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	var reindex http.Handler = http.HandlerFunc(h.Reindex)
	if d.ReindexLimiter != nil {
		reindex = middleware.Throttle(d.ReindexLimiter)(reindex)
	}
	mux.Handle("GET /api/v1/reindex", reindex)
	mux.Handle("POST /api/v1/reindex", reindex)

	if d.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", d.Analytics.Stats)
		mux.HandleFunc("GET /api/v1/analytics/history", d.Analytics.History)
	}
	if d.Health != nil {
		mux.HandleFunc("GET /health/live", d.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", d.Health.ReadyHandler())
	}
	if d.Metrics != nil && d.ServeMetrics {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	var chain http.Handler = mux
	if d.Timeout > 0 {
		chain = middleware.Timeout(d.Timeout)(chain)
	}
	if d.Metrics != nil {
		chain = middleware.Metrics(d.Metrics)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)
	return chain
}
