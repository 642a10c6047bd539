// Package retry provides the single retry-with-backoff primitive shared by
// the asset stager and the destination adapter's login path.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy configures a bounded retry loop with exponential backoff.
//
// Attempts is the total number of tries (not additional retries): a policy
// with Attempts=3 runs the operation at most three times. The delay before
// retry N is BaseDelay << (N-1), so delays double from the base value.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, the attempt budget is exhausted, the error
// is not retryable, or ctx is cancelled. The last error is returned
// unwrapped so callers can inspect it with errors.As.
//
// fn always runs at least once, even with a zero or negative Attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled after %d attempts: %w", i, ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
