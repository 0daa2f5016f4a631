// Package ratelimit is an in-memory token-bucket limiter keyed by an
// arbitrary client identifier.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	tokens    float64
	lastCheck time.Time
}

// Limiter grants each key limit tokens per window, refilled continuously.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	now     func() time.Time
}

// New starts a limiter whose idle entries are swept until ctx is cancelled.
func New(ctx context.Context, limit int, window time.Duration) *Limiter {
	l := &Limiter{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
	go l.cleanup(ctx)
	return l
}

// Allow consumes one token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		l.entries[key] = &entry{tokens: float64(l.limit - 1), lastCheck: now}
		return l.limit > 0
	}

	elapsed := now.Sub(e.lastCheck)
	e.lastCheck = now
	rate := float64(l.limit) / l.window.Seconds()
	e.tokens = min(e.tokens+elapsed.Seconds()*rate, float64(l.limit))

	if e.tokens < 1 {
		return false
	}
	e.tokens--
	return true
}

// RetryAfter is the time for an empty bucket to earn one token.
func (l *Limiter) RetryAfter() time.Duration {
	if l.limit <= 0 {
		return l.window
	}
	return l.window / time.Duration(l.limit)
}

func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.window)
	for key, e := range l.entries {
		if e.lastCheck.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}

func (l *Limiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}
