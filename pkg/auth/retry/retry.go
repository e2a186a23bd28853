// Package retry re-invokes an operation while a caller-supplied predicate
// asks for another attempt. It imposes no delay; callers build their own
// backoff from the attempt number, typically with Sleep and Backoff.
package retry

import (
	"context"
	"time"
)

// Func is one attempt. attempt starts at 0.
type Func[T any] func(ctx context.Context, attempt int) (T, error)

// ShouldRetry decides after each attempt whether to try again. err is nil on
// success, in which case result holds the attempt's value.
type ShouldRetry[T any] func(attempt int, err error, result T) bool

// Do runs fn until shouldRetry returns false and settles with the last
// attempt's outcome. If ctx is done between attempts, ctx.Err() is returned.
func Do[T any](ctx context.Context, fn Func[T], shouldRetry ShouldRetry[T]) (T, error) {
	for attempt := 0; ; attempt++ {
		result, err := fn(ctx, attempt)
		if !shouldRetry(attempt, err, result) {
			return result, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			var zero T
			return zero, ctxErr
		}
	}
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Backoff returns base·2^attempt capped at limit (no cap when limit <= 0).
func Backoff(attempt int, base, limit time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if limit > 0 && d >= limit {
			return limit
		}
	}
	if limit > 0 && d > limit {
		return limit
	}
	return d
}
