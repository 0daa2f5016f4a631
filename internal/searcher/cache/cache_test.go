package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/resilience"
)

func newLRUCache(t *testing.T) *QueryCache {
	t.Helper()
	store, err := NewLRUStore(16)
	require.NoError(t, err)
	return New(store, Namespace("/corpus", config.Default().Search))
}

func result(q string) *executor.SearchResult {
	return &executor.SearchResult{Query: q, Results: []executor.Result{{Title: q}}}
}

func TestGetOrCompute_KeyedBySnapshot(t *testing.T) {
	c := newLRUCache(t)
	ctx := context.Background()
	plan := parser.Parse("apple")
	computed := 0
	compute := func() (*executor.SearchResult, error) {
		computed++
		return result("apple"), nil
	}

	_, hit, err := c.GetOrCompute(ctx, "snap-a", plan, 20, compute)
	require.NoError(t, err)
	assert.False(t, hit)

	_, hit, err = c.GetOrCompute(ctx, "snap-a", plan, 20, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, computed)

	_, hit, err = c.GetOrCompute(ctx, "snap-b", plan, 20, compute)
	require.NoError(t, err)
	assert.False(t, hit, "a different snapshot never reuses old entries")
	assert.Equal(t, 2, computed)

	_, hit, _ = c.GetOrCompute(ctx, "snap-b", plan, 5, compute)
	assert.False(t, hit, "limit is part of the key")

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(3), misses)
}

func TestGetOrCompute_EquivalentQueriesShareEntry(t *testing.T) {
	c := newLRUCache(t)
	ctx := context.Background()
	_, _, err := c.GetOrCompute(ctx, "snap-a", parser.Parse("Banana apple"), 20, func() (*executor.SearchResult, error) {
		return result("x"), nil
	})
	require.NoError(t, err)

	_, ok := c.Get(ctx, "snap-a", parser.Parse("apple, banana"), 20)
	assert.True(t, ok)
	_, ok = c.Get(ctx, "snap-a", parser.Parse("apple banana banana"), 20)
	assert.False(t, ok)
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c := newLRUCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "snap-a", parser.Parse("q"), 1, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), "snap-a", parser.Parse("q"), 1)
	assert.False(t, ok)
}

func TestGetOrCompute_CoalescesConcurrentMisses(t *testing.T) {
	c := newLRUCache(t)
	var computed atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), "snap-a", parser.Parse("slow"), 20, func() (*executor.SearchResult, error) {
				computed.Add(1)
				<-release
				return result("slow"), nil
			})
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return computed.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), computed.Load())
}

func TestNamespaceSeparatesEngines(t *testing.T) {
	store, err := NewLRUStore(16)
	require.NoError(t, err)
	a := New(store, Namespace("/corpus-a", config.Default().Search))
	b := New(store, Namespace("/corpus-b", config.Default().Search))

	a.Set(context.Background(), "snap-a", parser.Parse("q"), 1, result("a"))
	_, ok := b.Get(context.Background(), "snap-a", parser.Parse("q"), 1)
	assert.False(t, ok)
}

func TestNamespace_ScoringParameters(t *testing.T) {
	base := config.Default().Search
	tuned := base
	tuned.K1 = 1.2
	wider := base
	wider.SnippetWidth = 400

	assert.Equal(t, Namespace("/corpus", base), Namespace("/corpus", base))
	assert.NotEqual(t, Namespace("/corpus", base), Namespace("/corpus", tuned))
	assert.NotEqual(t, Namespace("/corpus", base), Namespace("/corpus", wider))

	store, err := NewLRUStore(16)
	require.NoError(t, err)
	New(store, Namespace("/corpus", base)).Set(context.Background(), "snap-a", parser.Parse("q"), 1, result("base"))
	_, ok := New(store, Namespace("/corpus", tuned)).Get(context.Background(), "snap-a", parser.Parse("q"), 1)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := newLRUCache(t)
	c.Set(context.Background(), "snap-a", parser.Parse("q"), 1, result("q"))
	require.NoError(t, c.Invalidate(context.Background()))
	_, ok := c.Get(context.Background(), "snap-a", parser.Parse("q"), 1)
	assert.False(t, ok)
	assert.Equal(t, "lru", c.Backend())
}

func TestRedisStore_UnreachableDegradesToMiss(t *testing.T) {
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}))
	t.Cleanup(func() { _ = client.Close() })
	breaker := resilience.NewCircuitBreaker("redis-test", resilience.CircuitBreakerConfig{FailureThreshold: 2})
	c := New(NewRedisStore(client, time.Minute, breaker), "/corpus")

	computed := 0
	for i := 0; i < 4; i++ {
		res, hit, err := c.GetOrCompute(context.Background(), "snap-a", parser.Parse("apple"), 20, func() (*executor.SearchResult, error) {
			computed++
			return result("apple"), nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "apple", res.Query)
	}
	assert.Equal(t, 4, computed)
	assert.Equal(t, resilience.StateOpen, breaker.GetState())
}
