package lock

import (
	"errors"
	"fmt"
	"time"
)

// ErrAcquireTimeout matches every *AcquireTimeoutError via errors.Is.
var ErrAcquireTimeout = errors.New("lock acquire timeout")

// AcquireTimeoutError is returned when a lock could not be acquired within
// the requested acquire timeout, or immediately when the timeout is zero.
type AcquireTimeoutError struct {
	Name    string
	Timeout time.Duration
}

func (e *AcquireTimeoutError) Error() string {
	if e.Timeout == 0 {
		return fmt.Sprintf("acquiring lock %q: lock is held and acquire timeout is zero", e.Name)
	}
	return fmt.Sprintf("acquiring lock %q: timed out after %s", e.Name, e.Timeout)
}

// IsAcquireTimeout is a marker that distinguishes lock timeouts from
// failures of the guarded operation.
func (e *AcquireTimeoutError) IsAcquireTimeout() bool { return true }

func (e *AcquireTimeoutError) Is(target error) bool { return target == ErrAcquireTimeout }

// IsAcquireTimeout reports whether err is, or wraps, a lock acquire timeout.
func IsAcquireTimeout(err error) bool {
	var marker interface{ IsAcquireTimeout() bool }
	if errors.As(err, &marker) {
		return marker.IsAcquireTimeout()
	}
	return false
}
