package agents

import (
	"context"
	"time"
)

// RetryPolicy retries an operation with linearly growing delays: the wait
// before attempt n+1 is BaseDelay*(n+1).
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy matches the generation defaults: three attempts total
// with 2s and 4s pauses between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 2 * time.Second}
}

// Do runs fn until it succeeds or the retry budget is spent, returning the
// last error. Cancellation during a backoff pause aborts immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lastErr = fn(ctx, attempt); lastErr == nil {
			return nil
		}
		if attempt == p.MaxRetries {
			break
		}
		delay := p.BaseDelay * time.Duration(attempt+1)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
