package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn with a derived context that is cancelled after the
// given timeout. If fn does not return in time the caller gets
// context.DeadlineExceeded without waiting for fn; fn must honour ctx so the
// goroutine does not outlive the call for long.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}

// Call combines a breaker and a timeout: the breaker decides whether fn runs
// at all and records the timed outcome.
func Call(ctx context.Context, cb *CircuitBreaker, timeout time.Duration, fn func(ctx context.Context) error) error {
	if cb == nil {
		return WithTimeout(ctx, timeout, "call", fn)
	}
	return cb.Execute(func() error {
		return WithTimeout(ctx, timeout, cb.Name(), fn)
	})
}
