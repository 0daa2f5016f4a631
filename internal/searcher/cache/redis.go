package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/resilience"
)

// RedisStore shares results between processes through Redis. Calls go
// through a circuit breaker so an unreachable server degrades to cache
// misses instead of slowing every query.
type RedisStore struct {
	client  *pkgredis.Client
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
}

func NewRedisStore(client *pkgredis.Client, ttl time.Duration, breaker *resilience.CircuitBreaker) *RedisStore {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
	}
	return &RedisStore{client: client, ttl: ttl, breaker: breaker}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*executor.SearchResult, bool, error) {
	data, err := resilience.Do(s.breaker, func() (string, error) {
		data, err := s.client.Get(ctx, key)
		if pkgredis.IsNilError(err) {
			return "", nil
		}
		return data, err
	})
	if err != nil || data == "" {
		return nil, false, err
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, false, fmt.Errorf("decoding cached result: %w", err)
	}
	return &result, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, result *executor.SearchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return s.breaker.Execute(func() error {
		return s.client.Set(ctx, key, data, s.ttl)
	})
}

func (s *RedisStore) Purge(ctx context.Context) (int64, error) {
	deleted, err := resilience.Do(s.breaker, func() (int64, error) {
		return s.client.FlushByPattern(ctx, keyPrefix+"*")
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return 0, fmt.Errorf("redis unavailable: %w", err)
	}
	return deleted, err
}

func (s *RedisStore) Name() string { return "redis" }
