package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/errors"
)

// WithTimeout bounds fn to timeout. A deadline hit is reported as
// errors.ErrTimeout wrapping context.DeadlineExceeded; a cancelled parent is
// reported as its own error. fn keeps running in the background after a
// timeout until it observes its context.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()

	var err error
	select {
	case err = <-done:
		if err == nil || tctx.Err() == nil {
			return err
		}
	case <-tctx.Done():
	}
	if perr := ctx.Err(); perr != nil {
		return fmt.Errorf("%s: %w", name, perr)
	}
	return fmt.Errorf("%s after %v: %w: %w", name, timeout, apperrors.ErrTimeout, context.DeadlineExceeded)
}
