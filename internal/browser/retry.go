package browser

import (
	"context"
	"fmt"
	"time"
)

// Retry calls fn until it succeeds or maxAttempts is reached, waiting
// baseDelay×attempt between tries. The last error is returned wrapped.
func Retry[T any](ctx context.Context, fn func(context.Context) (T, error), maxAttempts int, baseDelay time.Duration) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(baseDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}

// RetryErr is Retry for functions without a result
func RetryErr(ctx context.Context, fn func(context.Context) error, maxAttempts int, baseDelay time.Duration) error {
	_, err := Retry(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, maxAttempts, baseDelay)
	return err
}
