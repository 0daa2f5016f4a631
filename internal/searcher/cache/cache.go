package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
)

const keyPrefix = "search:"

// Store is a result cache backend.
type Store interface {
	Get(ctx context.Context, key string) (*executor.SearchResult, bool, error)
	Set(ctx context.Context, key string, result *executor.SearchResult) error
	Purge(ctx context.Context) (int64, error)
	Name() string
}

// QueryCache memoises search results per snapshot fingerprint. The
// fingerprint is derived from the indexed content, so an entry is only ever
// served for the exact corpus state it was computed against, including
// across restarts and processes sharing a Redis backend.
type QueryCache struct {
	store     Store
	namespace string
	group     singleflight.Group
	logger    *slog.Logger
	hits      atomic.Int64
	misses    atomic.Int64
}

// New wraps store. namespace separates engines sharing one backend; build
// it with Namespace.
func New(store Store, namespace string) *QueryCache {
	return &QueryCache{
		store:     store,
		namespace: namespace,
		logger:    slog.Default().With("component", "query-cache", "backend", store.Name()),
	}
}

// Namespace identifies everything besides the corpus that shapes a result:
// the root results are relative to, the BM25 parameters and snippet width.
func Namespace(root string, cfg config.SearchConfig) string {
	return fmt.Sprintf("%s|k1=%g|b=%g|snippet=%d", root, cfg.K1, cfg.B, cfg.SnippetWidth)
}

func (c *QueryCache) Get(ctx context.Context, snapshot string, plan *parser.QueryPlan, limit int) (*executor.SearchResult, bool) {
	key := c.buildKey(snapshot, plan, limit)
	result, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", plan.RawQuery, "snapshot", snapshot)
	return result, true
}

func (c *QueryCache) Set(ctx context.Context, snapshot string, plan *parser.QueryPlan, limit int, result *executor.SearchResult) {
	key := c.buildKey(snapshot, plan, limit)
	if err := c.store.Set(ctx, key, result); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for (snapshot, plan, limit) or runs
// computeFn once, however many callers ask concurrently.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	snapshot string,
	plan *parser.QueryPlan,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, snapshot, plan, limit); ok {
		return result, true, nil
	}
	key := c.buildKey(snapshot, plan, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, snapshot, plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.Purge(ctx)
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) Backend() string {
	return c.store.Name()
}

func (c *QueryCache) buildKey(snapshot string, plan *parser.QueryPlan, limit int) string {
	raw := fmt.Sprintf("%s|snap=%s|%s|limit=%d", c.namespace, snapshot, plan.Normalized(), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
