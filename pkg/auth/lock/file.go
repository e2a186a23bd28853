package lock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/jrschumacher/authsync/pkg/auth/metrics"
)

const (
	lockFilePrefix        = "authsync"
	defaultFileRetryDelay = 25 * time.Millisecond
	lockDirPermissions    = 0o700
)

// FileLock is a Locker for several processes sharing one session store.
// In-process callers queue on a ProcessLock first, so FIFO order and the
// acquire timeout behave exactly as with ProcessLock; the holder then takes
// an advisory lock file derived from the name.
type FileLock struct {
	dir        string
	local      *ProcessLock
	retryDelay time.Duration
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// NewFileLock creates a file-backed locker storing lock files in dir.
func NewFileLock(dir string, opts ...Option) *FileLock {
	local := NewProcessLock(opts...)
	return &FileLock{
		dir:        dir,
		local:      local,
		retryDelay: defaultFileRetryDelay,
		metrics:    local.metrics,
		logger:     local.logger,
	}
}

// Acquire implements Locker.
func (f *FileLock) Acquire(ctx context.Context, name string, acquireTimeout time.Duration) (Release, error) {
	start := time.Now()

	releaseLocal, err := f.local.Acquire(ctx, name, acquireTimeout)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(f.dir, lockDirPermissions); err != nil {
		releaseLocal()
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	fl := flock.New(f.Path(name))
	locked, err := f.lockFile(ctx, fl, acquireTimeout, start)
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	if !locked {
		releaseLocal()
		f.metrics.IncAcquireTimeout(name)
		return nil, &AcquireTimeoutError{Name: name, Timeout: acquireTimeout}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := fl.Unlock(); err != nil {
				f.logger.Warn("failed to unlock lock file", "path", fl.Path(), "error", err)
			}
			releaseLocal()
		})
	}, nil
}

func (f *FileLock) lockFile(ctx context.Context, fl *flock.Flock, acquireTimeout time.Duration, start time.Time) (bool, error) {
	switch {
	case acquireTimeout == 0:
		return fl.TryLock()
	case acquireTimeout < 0:
		return fl.TryLockContext(ctx, f.retryDelay)
	}

	remaining := acquireTimeout - time.Since(start)
	if remaining <= 0 {
		return fl.TryLock()
	}
	lctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	locked, err := fl.TryLockContext(lctx, f.retryDelay)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// Our own deadline, not the caller's: report it as a lock timeout.
		return false, nil
	}
	return locked, err
}

// Path returns the lock file used for name. Names are hashed so any string is
// a valid lock name.
func (f *FileLock) Path(name string) string {
	sum := sha256.Sum256([]byte(name))
	return filepath.Join(f.dir, fmt.Sprintf("%s-%s.lock", lockFilePrefix, hex.EncodeToString(sum[:8])))
}
