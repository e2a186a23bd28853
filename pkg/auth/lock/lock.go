// Package lock provides named, exclusive, FIFO-fair locks with bounded
// acquisition.
//
// The acquire timeout passed to Acquire and WithLock selects the mode:
//
//   - negative: wait until granted or ctx is done
//   - zero: fail immediately with *AcquireTimeoutError if the lock is busy
//   - positive: wait at most that long, then leave the queue and fail with
//     *AcquireTimeoutError without disturbing the other waiters
//
// Two backends share that contract. ProcessLock coordinates goroutines in one
// process. FileLock additionally takes an advisory lock file so processes that
// share a session store never refresh concurrently.
package lock

import (
	"context"
	"time"
)

// WaitForever requests an acquisition without a timeout.
const WaitForever time.Duration = -1

// Release hands the lock to the next waiter. Calling it more than once is a no-op.
type Release func()

// Locker acquires named exclusive locks.
type Locker interface {
	Acquire(ctx context.Context, name string, acquireTimeout time.Duration) (Release, error)
}

// WithLock runs op while holding the named lock. The lock is released when op
// returns, fails or panics; op's error is returned after the release.
func WithLock[T any](ctx context.Context, l Locker, name string, acquireTimeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	release, err := l.Acquire(ctx, name, acquireTimeout)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()

	return op(ctx)
}
