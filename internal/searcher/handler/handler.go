// Package handler serves the search HTTP API and the embedded UI.
package handler

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/tracing"
)

//go:embed web/index.html
var webFS embed.FS

// Engine is the part of indexer.Engine the handlers use.
type Engine interface {
	Rebuild(ctx context.Context) (indexer.RebuildResult, error)
	Status() indexer.Status
	Resolve(rel string) (string, error)
}

type Option func(*Handler)

func WithCache(c *cache.QueryCache) Option {
	return func(h *Handler) { h.cache = c }
}

func WithCollector(c *analytics.Collector) Option {
	return func(h *Handler) { h.collector = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

type Handler struct {
	engine       Engine
	executor     *executor.Executor
	cache        *cache.QueryCache
	collector    *analytics.Collector
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

func New(engine Engine, exec *executor.Executor, cfg config.SearchConfig, opts ...Option) *Handler {
	h := &Handler{
		engine:       engine,
		executor:     exec,
		defaultLimit: cfg.DefaultLimit,
		maxResults:   cfg.MaxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
	if h.defaultLimit <= 0 {
		h.defaultLimit = 20
	}
	if h.maxResults < h.defaultLimit {
		h.maxResults = h.defaultLimit
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Search answers GET /api/v1/search?q=&limit= with a JSON array of results.
// A missing or blank query yields an empty array without touching the index.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan := parser.Parse(query)
	if plan.Empty() {
		h.writeJSON(w, http.StatusOK, []executor.Result{})
		return
	}

	ctx, span := tracing.StartSpan(r.Context(), "search", logger.RequestID(r.Context()))
	log := logger.FromContext(ctx)
	defer func() {
		span.End()
		span.Log(ctx, log)
	}()

	result, cacheHit, err := h.execute(ctx, plan, limit)
	took := time.Since(start)
	if h.metrics != nil {
		returned := 0
		if result != nil {
			returned = len(result.Results)
		}
		h.metrics.ObserveSearch(returned, cacheHit, took, err)
	}
	if err != nil {
		log.Error("search failed", "query", query, "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "search failed")
		return
	}
	span.SetAttr("cache_hit", cacheHit)

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"version", result.Version,
		"latency_ms", took.Milliseconds(),
	)
	h.track(ctx, plan, result, cacheHit, took)

	w.Header().Set("X-Cache", cacheStatus(cacheHit))
	w.Header().Set("X-Index-Version", strconv.FormatUint(result.Version, 10))
	w.Header().Set("X-Total-Hits", strconv.Itoa(result.TotalHits))
	h.writeJSON(w, http.StatusOK, result.Results)
}

func (h *Handler) execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, bool, error) {
	snap, err := h.executor.Snapshot(ctx)
	if err != nil {
		return nil, false, err
	}
	compute := func() (*executor.SearchResult, error) {
		return h.executor.ExecuteOn(ctx, snap, plan, limit), nil
	}
	if h.cache == nil {
		res, err := compute()
		return res, false, err
	}
	res, hit, err := h.cache.GetOrCompute(ctx, snap.Fingerprint(), plan, limit, compute)
	if err != nil || !hit || res.Version == snap.Version() {
		return res, hit, err
	}
	// Entries may come from another process or an earlier run over the same
	// content; report the version of the snapshot actually serving.
	stamped := *res
	stamped.Version = snap.Version()
	return &stamped, true, nil
}

func (h *Handler) track(ctx context.Context, plan *parser.QueryPlan, result *executor.SearchResult, cacheHit bool, took time.Duration) {
	if h.collector == nil {
		return
	}
	eventType := analytics.EventSearch
	if result.TotalHits == 0 {
		eventType = analytics.EventZeroResult
	}
	h.collector.Track(analytics.SearchEvent{
		Type:         eventType,
		Query:        plan.RawQuery,
		Terms:        plan.Terms,
		TotalHits:    result.TotalHits,
		Returned:     len(result.Results),
		LatencyMs:    float64(took.Microseconds()) / 1000,
		CacheHit:     cacheHit,
		IndexVersion: result.Version,
		Timestamp:    time.Now().UTC(),
		RequestID:    logger.RequestID(ctx),
	})
}

func (h *Handler) parseLimit(s string) (int, error) {
	if s == "" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("limit must be an integer")
	}
	if n <= 0 {
		return h.defaultLimit, nil
	}
	return min(n, h.maxResults), nil
}

// Reindex forces a rebuild. Concurrent calls share one build.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	res, err := h.engine.Rebuild(r.Context())
	if err != nil {
		log.Error("reindex failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "reindex failed")
		return
	}
	log.Info("reindex completed", "docs", res.Documents, "version", res.Version, "shared", res.Shared)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"docs":        res.Documents,
		"skipped":     res.Skipped,
		"version":     res.Version,
		"duration_ms": res.Duration.Milliseconds(),
		"shared":      res.Shared,
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.engine.Status())
}

// Raw serves the bytes of an indexed file named by its root-relative path.
func (h *Handler) Raw(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	abs, err := h.engine.Resolve(rel)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		logger.FromContext(r.Context()).Debug("raw lookup rejected", "path", rel, "status", status, "error", err)
		h.writeError(w, status, http.StatusText(status))
		return
	}
	f, err := os.Open(abs)
	if err != nil {
		h.writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "stat failed")
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(abs))
	if ctype == "" {
		ctype = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"backend":  h.cache.Backend(),
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// UI serves the single-page search interface.
func (h *Handler) UI(w http.ResponseWriter, r *http.Request) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "ui unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(page)
}

func cacheStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
