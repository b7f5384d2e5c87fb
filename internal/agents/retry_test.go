package agents

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	attempts := 0
	wantErr := errors.New("permanent")
	err := policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want last error", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (initial + 2 retries)", attempts)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		return errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (cancelled during backoff)", attempts)
	}
}

func TestRetryPassesAttemptNumber(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}
	var seen []int
	_ = policy.Do(context.Background(), func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		return errors.New("again")
	})
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Fatalf("attempts seen = %v, want [0 1]", seen)
	}
}
