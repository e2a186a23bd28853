package session

import (
	"context"
	"log/slog"
	"sync"
)

// Event names an auth state change.
type Event string

// Auth state events.
const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener receives auth state changes. The session is nil for EventSignedOut
// and may be nil for EventInitialSession. ctx carries the values of the
// operation that produced the event but is never cancelled.
type Listener func(ctx context.Context, event Event, s *Session)

type notification struct {
	ctx     context.Context
	event   Event
	session *Session
}

// Notifier fans events out to listeners. Each listener runs on its own
// goroutine and sees events in the order they were published; a slow
// listener delays only itself.
type Notifier struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

// NewNotifier creates a Notifier. A nil logger uses slog.Default.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger: logger,
		subs:   make(map[uint64]*subscriber),
	}
}

// Subscribe registers fn and returns a function that unregisters it.
// Events queued for fn but not yet delivered are dropped on unsubscribe.
func (n *Notifier) Subscribe(fn Listener) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return func() {}
	}

	n.nextID++
	sub := &subscriber{
		id:     n.nextID,
		fn:     fn,
		logger: n.logger,
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
	n.subs[sub.id] = sub
	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, sub.id)
			n.mu.Unlock()
			sub.stop()
		})
	}
}

// Notify queues event for every current listener. It never blocks on a listener.
func (n *Notifier) Notify(ctx context.Context, event Event, s *Session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	for _, sub := range n.subs {
		sub.push(notification{ctx: ctx, event: event, session: s.Clone()})
	}
}

// Close delivers already queued events, then stops every listener goroutine.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	subs := make([]*subscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		subs = append(subs, sub)
	}
	n.subs = nil
	n.mu.Unlock()

	for _, sub := range subs {
		sub.drain()
	}
	for _, sub := range subs {
		<-sub.exited
	}
}

type subscriber struct {
	id     uint64
	fn     Listener
	logger *slog.Logger

	mu       sync.Mutex
	queue    []notification
	stopped  bool
	draining bool

	wake   chan struct{}
	exited chan struct{}
}

func (s *subscriber) push(n notification) {
	s.mu.Lock()
	if s.stopped || s.draining {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, n)
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) stop() {
	s.mu.Lock()
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	defer close(s.exited)
	for {
		<-s.wake
		for {
			s.mu.Lock()
			if s.stopped {
				s.mu.Unlock()
				return
			}
			if len(s.queue) == 0 {
				draining := s.draining
				s.mu.Unlock()
				if draining {
					return
				}
				break
			}
			next := s.queue[0]
			s.queue[0] = notification{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.deliver(next)
		}
	}
}

func (s *subscriber) deliver(n notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("auth state listener panicked",
				"subscriber", s.id,
				"event", string(n.event),
				"panic", r)
		}
	}()
	s.fn(n.ctx, n.event, n.session)
}
