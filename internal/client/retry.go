package client

import (
	"context"
	"time"

	"github.com/Veirt/weathr/internal/observability"
)

const (
	// MaxRetries is the number of attempts made for every remote call.
	MaxRetries = 3
	// InitialRetryDelay is the wait before the second attempt; it doubles after each failure.
	InitialRetryDelay = 500 * time.Millisecond
)

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy bounds a retried call.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Sleep        SleepFunc
}

// DefaultRetryPolicy is three attempts with 500ms and 1000ms waits between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  MaxRetries,
		InitialDelay: InitialRetryDelay,
		Sleep:        SleepContext,
	}
}

// SleepContext is the production SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FetchWithRetry runs op up to policy.MaxAttempts times. An error for which
// isTerminal returns true is returned immediately without sleeping. Otherwise
// the delay doubles after each failed attempt and no sleep follows the last one.
// When all attempts fail the result is a *RetriesExhaustedError wrapping the last error.
func FetchWithRetry[T any](ctx context.Context, policy RetryPolicy, isTerminal func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = MaxRetries
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = InitialRetryDelay
	}
	if policy.Sleep == nil {
		policy.Sleep = SleepContext
	}
	if isTerminal == nil {
		isTerminal = IsTerminal
	}

	var lastErr error
	delay := policy.InitialDelay
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			observability.UpstreamRetriesTotal.Inc()
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if isTerminal(err) {
			return zero, err
		}
		lastErr = err

		if attempt < policy.MaxAttempts {
			if sleepErr := policy.Sleep(ctx, delay); sleepErr != nil {
				return zero, sleepErr
			}
			delay *= 2
		}
	}

	return zero, &RetriesExhaustedError{Attempts: policy.MaxAttempts, Last: lastErr}
}
