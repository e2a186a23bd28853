package lock

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jrschumacher/authsync/pkg/auth/deferred"
	"github.com/jrschumacher/authsync/pkg/auth/metrics"
)

// ProcessLock is an in-memory Locker. Each instance owns its own lock table,
// so independent clients in one process never contend unless they share it.
type ProcessLock struct {
	mu     sync.Mutex
	states map[string]*lockState
	nextID uint64

	metrics *metrics.Collector
	logger  *slog.Logger
}

// lockState exists only while a name is held. A non-empty queue implies a holder.
type lockState struct {
	heldBy string
	queue  *list.List
}

type waiter struct {
	id         uint64
	granted    *deferred.Deferred[string]
	elem       *list.Element // nil once granted or dequeued
	timeout    time.Duration
	enqueuedAt time.Time
}

// Option configures a ProcessLock.
type Option func(*ProcessLock)

// WithMetrics records acquire latency, timeouts and held state.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *ProcessLock) { l.metrics = c }
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(l *ProcessLock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewProcessLock creates an empty lock table.
func NewProcessLock(opts ...Option) *ProcessLock {
	l := &ProcessLock{
		states: make(map[string]*lockState),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "lock")
	return l
}

// Acquire implements Locker.
func (l *ProcessLock) Acquire(ctx context.Context, name string, acquireTimeout time.Duration) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	l.mu.Lock()
	st, ok := l.states[name]
	if !ok {
		st = &lockState{queue: list.New()}
		l.states[name] = st
	}

	// Fast path: free and nobody queued ahead of us.
	if st.heldBy == "" && st.queue.Len() == 0 {
		token := uuid.NewString()
		st.heldBy = token
		l.metrics.ObserveAcquire(name, 0)
		l.mu.Unlock()
		return l.releaser(name, token), nil
	}

	if acquireTimeout == 0 {
		l.mu.Unlock()
		l.metrics.IncAcquireTimeout(name)
		return nil, &AcquireTimeoutError{Name: name, Timeout: 0}
	}

	l.nextID++
	w := &waiter{
		id:         l.nextID,
		granted:    deferred.New[string](),
		timeout:    acquireTimeout,
		enqueuedAt: start,
	}
	w.elem = st.queue.PushBack(w)
	l.mu.Unlock()

	l.logger.Debug("waiting for lock", "name", name, "waiter", w.id, "timeout", acquireTimeout)

	if acquireTimeout > 0 {
		timer := time.AfterFunc(acquireTimeout, func() {
			if l.dequeue(name, w) {
				w.granted.Reject(&AcquireTimeoutError{Name: name, Timeout: acquireTimeout})
			}
		})
		defer timer.Stop()
	}

	select {
	case <-w.granted.Done():
	case <-ctx.Done():
		if l.dequeue(name, w) {
			w.granted.Reject(ctx.Err())
		}
		// Either we rejected it above or a grant raced the cancellation.
		<-w.granted.Done()
	}

	token, err := w.granted.Result()
	if err != nil {
		if IsAcquireTimeout(err) {
			l.metrics.IncAcquireTimeout(name)
			l.logger.Debug("lock acquire timed out", "name", name, "waiter", w.id, "waited", time.Since(start))
		}
		return nil, err
	}

	release := l.releaser(name, token)
	if err := ctx.Err(); err != nil {
		release()
		return nil, err
	}
	l.metrics.ObserveAcquire(name, time.Since(start))
	return release, nil
}

// dequeue removes w from the queue if it is still waiting.
func (l *ProcessLock) dequeue(name string, w *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w.elem == nil {
		return false
	}
	st := l.states[name]
	st.queue.Remove(w.elem)
	w.elem = nil
	return true
}

func (l *ProcessLock) releaser(name, token string) Release {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(name, token) })
	}
}

func (l *ProcessLock) release(name, token string) {
	l.mu.Lock()
	st, ok := l.states[name]
	if !ok || st.heldBy != token {
		l.mu.Unlock()
		return
	}

	if front := st.queue.Front(); front != nil {
		w := st.queue.Remove(front).(*waiter)
		w.elem = nil
		next := uuid.NewString()
		st.heldBy = next
		w.granted.Resolve(next)
		l.mu.Unlock()
		return
	}

	// The held gauge is written under l.mu so it follows holder changes in order.
	delete(l.states, name)
	l.metrics.ObserveRelease(name)
	l.mu.Unlock()
}

// Held reports whether name is currently held.
func (l *ProcessLock) Held(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[name]
	return ok && st.heldBy != ""
}

// QueueLen returns the number of goroutines waiting for name.
func (l *ProcessLock) QueueLen(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.states[name]; ok {
		return st.queue.Len()
	}
	return 0
}
