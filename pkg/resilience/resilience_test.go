package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/errors"
)

var errBackend = errors.New("backend down")

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
		OnStateChange:    func(_ string, to State) { transitions = append(transitions, to) },
	})

	require.ErrorIs(t, cb.Execute(func() error { return errBackend }), errBackend)
	assert.Equal(t, StateClosed, cb.GetState())
	require.ErrorIs(t, cb.Execute(func() error { return errBackend }), errBackend)
	assert.Equal(t, StateOpen, cb.GetState())

	calls := 0
	err := cb.Execute(func() error { calls++; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 0, calls)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
	})
	_ = cb.Execute(func() error { return errBackend })
	time.Sleep(15 * time.Millisecond)
	_ = cb.Execute(func() error { return errBackend })
	assert.Equal(t, StateOpen, cb.GetState())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, "test", cb.Name())
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	attempts := 0
	err := Retry(context.Background(), "flaky", cfg, func() error {
		attempts++
		if attempts < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = Retry(context.Background(), "broken", cfg, func() error {
		attempts++
		return errBackend
	})
	require.ErrorIs(t, err, errBackend)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func() error {
		return errBackend
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)

	require.NoError(t, WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error {
		return nil
	}))
}

func TestWithTimeout_ParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WithTimeout(ctx, time.Second, "cancelled", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTimeout)
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	errPermanent := errors.New("bad schema")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, errPermanent) },
	}
	err := Retry(context.Background(), "permanent", cfg, func() error {
		calls++
		return errPermanent
	})
	require.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestRetry_OpenCircuitNotRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "breaker", RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond}, func() error {
		calls++
		return ErrCircuitOpen
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}.withDefaults()
	first := backoff(1, cfg)
	assert.InDelta(t, float64(100*time.Millisecond), float64(first), float64(10*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, backoff(5, cfg))
}

func TestCircuitBreaker_CancellationIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1})
	require.ErrorIs(t, cb.Execute(func() error { return context.Canceled }), context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())

	require.ErrorIs(t, cb.Execute(func() error { return errBackend }), errBackend)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_ReopenUsesClock(t *testing.T) {
	now := time.Unix(1000, 0)
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errBackend })
	now = now.Add(59 * time.Second)
	require.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitOpen)

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestDo(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{})
	n, err := Do(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Do(cb, func() (string, error) { return "", errBackend })
	assert.ErrorIs(t, err, errBackend)
}
