// Package resilience guards calls to the optional network backends (Redis,
// Kafka, PostgreSQL) with a circuit breaker, exponential-backoff retry and a
// context-based timeout wrapper. The search path never depends on them.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker is open or its half-open probe slots are taken.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit. Default 5.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing.
	// Default 30s.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests caps concurrent probes. Default 1.
	HalfOpenMaxRequests int
	// IsFailure classifies errors. Nil counts every error except context
	// cancellation, which is the caller giving up rather than the backend
	// failing.
	IsFailure func(err error) bool
	// OnStateChange, if set, is called with the breaker's lock held after
	// every transition. It must not call back into the breaker.
	OnStateChange func(name string, to State)
}

type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
		now:    time.Now,
	}
}

// Execute runs fn if the circuit admits it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// Do is Execute for functions that return a value.
func Do[T any](cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var out T
	err := cb.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string { return cb.name }

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probes = 0
	if cb.state != StateClosed {
		cb.transition(StateClosed, "manual reset")
	}
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.probes = 0
		cb.transition(StateHalfOpen, "reset timeout elapsed")
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.IsFailure(err) {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.transition(StateClosed, "probe succeeded")
		}
		return
	}

	cb.failures++
	switch {
	case cb.state == StateHalfOpen:
		cb.trip("probe failed", err)
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.trip("failure threshold reached", err)
	}
}

func (cb *CircuitBreaker) trip(reason string, err error) {
	cb.openedAt = cb.now()
	cb.transition(StateOpen, reason, "failures", cb.failures, "error", err)
}

func (cb *CircuitBreaker) transition(to State, reason string, attrs ...any) {
	from := cb.state
	cb.state = to
	attrs = append([]any{"from", from.String(), "to", to.String(), "reason", reason}, attrs...)
	if to == StateOpen {
		cb.logger.Warn("circuit state changed", attrs...)
	} else {
		cb.logger.Info("circuit state changed", attrs...)
	}
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
