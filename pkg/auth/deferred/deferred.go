// Package deferred provides a write-once, read-many result slot.
//
// A Deferred is settled exactly once, either with a value or an error, and
// any number of goroutines may wait for that outcome. The lock uses it to hand
// a grant to a queued waiter and the session coordinator uses it to share one
// refresh result among every caller that joined the same flight.
package deferred

import (
	"context"
	"errors"
	"sync"
)

// ErrNotSettled is returned by Result before the deferred is settled.
var ErrNotSettled = errors.New("deferred not settled")

// Deferred is a settlable future. The zero value is not usable; call New.
type Deferred[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New creates an unsettled deferred.
func New[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolve settles the deferred with v. It reports whether this call settled it.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(v, nil)
}

// Reject settles the deferred with err. It reports whether this call settled it.
func (d *Deferred[T]) Reject(err error) bool {
	var zero T
	return d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) bool {
	settled := false
	d.once.Do(func() {
		d.value = v
		d.err = err
		settled = true
		close(d.done)
	})
	return settled
}

// Done is closed once the deferred is settled.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Settled reports whether Resolve or Reject has been called.
func (d *Deferred[T]) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the deferred is settled or ctx is done. A cancelled wait
// does not settle the deferred; other readers are unaffected.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result returns the settled outcome without blocking, or ErrNotSettled.
func (d *Deferred[T]) Result() (T, error) {
	select {
	case <-d.done:
		return d.value, d.err
	default:
		var zero T
		return zero, ErrNotSettled
	}
}
