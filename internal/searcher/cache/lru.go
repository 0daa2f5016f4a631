package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
)

// LRUStore keeps results in process memory.
type LRUStore struct {
	entries *lru.Cache[string, *executor.SearchResult]
}

func NewLRUStore(size int) (*LRUStore, error) {
	if size <= 0 {
		size = 512
	}
	entries, err := lru.New[string, *executor.SearchResult](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &LRUStore{entries: entries}, nil
}

func (s *LRUStore) Get(_ context.Context, key string) (*executor.SearchResult, bool, error) {
	result, ok := s.entries.Get(key)
	return result, ok, nil
}

func (s *LRUStore) Set(_ context.Context, key string, result *executor.SearchResult) error {
	s.entries.Add(key, result)
	return nil
}

func (s *LRUStore) Purge(context.Context) (int64, error) {
	n := s.entries.Len()
	s.entries.Purge()
	return int64(n), nil
}

func (s *LRUStore) Name() string { return "lru" }
