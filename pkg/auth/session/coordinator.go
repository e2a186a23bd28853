package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrschumacher/authsync/pkg/auth/deferred"
	"github.com/jrschumacher/authsync/pkg/auth/guard"
	"github.com/jrschumacher/authsync/pkg/auth/lock"
	"github.com/jrschumacher/authsync/pkg/auth/metrics"
)

// guardRefreshing marks contexts that are running inside a refresh.
const guardRefreshing = "refreshing"

// Refresher exchanges a refresh token for a new session. Implementations
// wrap ErrSessionMissing when the server rejects the refresh token for good.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*Session, error)

// Refresh implements Refresher.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return f(ctx, refreshToken)
}

// State is the coarse auth state of a Coordinator.
type State int

const (
	StateSignedOut State = iota
	StateSignedIn
)

func (s State) String() string {
	if s == StateSignedIn {
		return "signed_in"
	}
	return "signed_out"
}

// Coordinator serializes every session mutation behind one named lock and
// collapses concurrent refresh requests into a single exchange.
//
// Reads never block: Session returns the last installed session. Writes
// (SetSession, SignOut, refreshes) hold the lock while they update storage
// and memory, so two holders never spend the same refresh token.
type Coordinator struct {
	cfg       Config
	refresher Refresher
	storage   Storage
	locker    lock.Locker
	notifier  *Notifier
	logger    *slog.Logger
	metrics   *metrics.Collector

	current atomic.Pointer[Session]

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	pending  *deferred.Deferred[*Session]
	timer    Timer
	timerGen uint64
	autoStop chan struct{}
	closed   bool
}

// New creates a Coordinator. A nil locker gets a ProcessLock; use a
// lock.FileLock when several processes share the storage.
func New(refresher Refresher, storage Storage, locker lock.Locker, cfg Config) (*Coordinator, error) {
	if refresher == nil {
		return nil, ErrMissingRefresher
	}
	if storage == nil {
		return nil, ErrMissingStorage
	}

	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("component", "session", "storage_key", cfg.StorageKey)
	if locker == nil {
		locker = lock.NewProcessLock(lock.WithMetrics(cfg.Metrics), lock.WithLogger(logger))
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:       cfg,
		refresher: refresher,
		storage:   storage,
		locker:    locker,
		notifier:  NewNotifier(logger),
		logger:    logger,
		metrics:   cfg.Metrics,
		bgCtx:     bgCtx,
		bgCancel:  cancel,
	}, nil
}

// Session returns a copy of the current session, or nil when signed out.
func (c *Coordinator) Session() *Session {
	return c.current.Load().Clone()
}

// State reports whether a session is installed.
func (c *Coordinator) State() State {
	if c.current.Load() != nil {
		return StateSignedIn
	}
	return StateSignedOut
}

// Subscribe registers fn for auth state events. Listeners must not call Close.
func (c *Coordinator) Subscribe(fn Listener) (unsubscribe func()) {
	return c.notifier.Subscribe(fn)
}

// Initialize loads the persisted session, refreshes it if it is about to
// expire, and publishes EventInitialSession with the result.
func (c *Coordinator) Initialize(ctx context.Context) (*Session, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}

	loaded, err := lock.WithLock(ctx, c.locker, c.cfg.LockName, c.lockTimeout(), func(ctx context.Context) (*Session, error) {
		stored, err := c.storage.Load(ctx, c.cfg.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		if stored == nil {
			return nil, nil
		}
		stored.normalize(c.now())
		if err := stored.Validate(); err != nil {
			c.logger.Warn("discarding invalid stored session", "error", err)
			return nil, c.clearSession(ctx)
		}
		c.install(stored)
		return stored, nil
	})
	if err != nil {
		return nil, err
	}

	if loaded != nil && loaded.ExpiresWithin(c.now(), c.cfg.ExpiryMargin) {
		if _, err := c.RefreshSession(ctx, false); err != nil {
			c.logger.Warn("failed to refresh recovered session", "error", err)
		}
	}

	s := c.Session()
	c.notify(ctx, EventInitialSession, s)
	return s, nil
}

// SetSession installs s as the current session, persists it and schedules
// its proactive refresh.
func (c *Coordinator) SetSession(ctx context.Context, s *Session) error {
	if c.isClosed() {
		return ErrClosed
	}
	if s == nil {
		return ErrInvalidSession
	}

	next := s.Clone()
	next.normalize(c.now())
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	_, err := lock.WithLock(ctx, c.locker, c.cfg.LockName, c.lockTimeout(), func(ctx context.Context) (struct{}, error) {
		if err := c.storage.Persist(ctx, c.cfg.StorageKey, next); err != nil {
			return struct{}{}, fmt.Errorf("failed to persist session: %w", err)
		}
		c.install(next)
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	c.logger.Info("session installed", "expires_at", next.Expiry())
	c.notify(ctx, EventSignedIn, next)
	return nil
}

// SignOut removes the session from memory and storage.
func (c *Coordinator) SignOut(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}

	_, err := lock.WithLock(ctx, c.locker, c.cfg.LockName, c.lockTimeout(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.clearSession(ctx)
	})
	if err != nil {
		return err
	}

	c.logger.Info("signed out")
	c.notify(ctx, EventSignedOut, nil)
	return nil
}

// GetSession returns the current session, refreshing it first when it
// expires within the expiry margin. It returns (nil, nil) when signed out.
func (c *Coordinator) GetSession(ctx context.Context) (*Session, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	s := c.current.Load()
	if s == nil {
		return nil, nil
	}
	if !s.ExpiresWithin(c.now(), c.cfg.ExpiryMargin) {
		return s.Clone(), nil
	}
	return c.RefreshSession(ctx, false)
}

// RefreshSession exchanges the refresh token for a new session.
//
// Concurrent calls share one exchange. The first caller acquires the session
// lock and starts the exchange; later callers wait for its outcome. Each
// caller's ctx bounds only its own wait: a caller that gives up, or fails to
// get the lock, leaves the exchange to the others. A call made from inside a
// refresh (a Refresher or a Listener using the ctx it was given) returns the
// current session immediately.
//
// Without force, a missing session fails with ErrSessionMissing. With
// force, the stored session is refreshed even if none is loaded, and tokens
// rotated by another process are refreshed again instead of adopted.
func (c *Coordinator) RefreshSession(ctx context.Context, force bool) (*Session, error) {
	if guard.Active(ctx, guardRefreshing) {
		c.metrics.ObserveRefresh(metrics.ResultSkipped, 0)
		c.logger.Debug("refresh requested during refresh, returning current session")
		if s := c.Session(); s != nil {
			return s, nil
		}
		return nil, ErrSessionMissing
	}

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if p := c.pending; p != nil {
			c.mu.Unlock()
			c.metrics.IncJoined()
			s, err := p.Wait(ctx)
			if errors.Is(err, errFlightAbandoned) {
				continue
			}
			return s.Clone(), err
		}
		if c.current.Load() == nil && !force {
			c.mu.Unlock()
			return nil, ErrSessionMissing
		}
		p := deferred.New[*Session]()
		c.pending = p
		c.mu.Unlock()

		return c.lead(ctx, p, force)
	}
}

// lead takes the session lock for p and runs the exchange on its own
// goroutine. The exchange keeps ctx's values but not its cancellation; it
// ends early only when the Coordinator is closed.
func (c *Coordinator) lead(ctx context.Context, p *deferred.Deferred[*Session], force bool) (*Session, error) {
	start := time.Now()
	release, err := c.locker.Acquire(ctx, c.cfg.LockName, c.lockTimeout())
	if err != nil {
		// The error is this caller's; waiters start over under their own ctx.
		c.finish(p, nil, errFlightAbandoned)
		c.metrics.ObserveRefresh(metrics.ResultError, time.Since(start))
		c.logger.Warn("session refresh failed", "error", err)
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		release()
		c.finish(p, nil, ErrClosed)
		return nil, ErrClosed
	}
	c.wg.Add(1)
	c.mu.Unlock()

	flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.bgCtx, cancel)
	go func() {
		defer c.wg.Done()
		defer cancel()
		defer stop()
		defer release()
		c.fly(flightCtx, p, force, start)
	}()

	s, err := p.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// fly runs one exchange with the session lock held and settles p.
func (c *Coordinator) fly(ctx context.Context, p *deferred.Deferred[*Session], force bool, start time.Time) {
	result := metrics.ResultError
	s, err := guard.Run(ctx, guardRefreshing, func(ctx context.Context) (*Session, error) {
		var s *Session
		var err error
		s, result, err = c.refreshLocked(ctx, p, force)
		return s, err
	})
	c.finish(p, s, err)
	c.metrics.ObserveRefresh(result, time.Since(start))

	if err != nil {
		c.logger.Warn("session refresh failed", "error", err)
		return
	}
	c.logger.Debug("session refreshed", "result", result, "expires_at", s.Expiry())
}

// refreshLocked runs with the session lock held. It settles p before
// publishing events so listeners that refresh again start a new exchange.
func (c *Coordinator) refreshLocked(ctx context.Context, p *deferred.Deferred[*Session], force bool) (*Session, string, error) {
	now := c.now()
	cur := c.current.Load()

	stored, err := c.storage.Load(ctx, c.cfg.StorageKey)
	if err != nil {
		c.logger.Warn("failed to read stored session before refresh", "error", err)
		stored = nil
	}
	if stored != nil {
		stored.normalize(now)
		if stored.Validate() != nil {
			stored = nil
		}
	}

	if !force && cur != nil && stored != nil &&
		stored.RefreshToken != cur.RefreshToken &&
		!stored.ExpiresWithin(now, c.cfg.ExpiryMargin) {
		c.logger.Info("adopting session rotated by another lock holder")
		c.install(stored)
		c.finish(p, stored, nil)
		c.notify(ctx, EventTokenRefreshed, stored)
		return stored, metrics.ResultAdopted, nil
	}

	if cur == nil {
		cur = stored
	}
	if cur == nil {
		c.finish(p, nil, ErrSessionMissing)
		return nil, metrics.ResultError, ErrSessionMissing
	}

	next, err := c.refresher.Refresh(ctx, cur.RefreshToken)
	if err == nil && next == nil {
		err = ErrSessionMissing
	}
	if err == nil {
		next = next.Clone()
		if next.User == nil {
			next.User = cur.User.Clone()
		}
		next.normalize(c.now())
		if verr := next.Validate(); verr != nil {
			err = fmt.Errorf("%w: %w", ErrInvalidSession, verr)
		}
	}
	if err != nil {
		signedOut := errors.Is(err, ErrSessionMissing)
		if signedOut {
			if rerr := c.clearSession(ctx); rerr != nil {
				c.logger.Error("failed to remove rejected session", "error", rerr)
			}
		}
		c.finish(p, nil, err)
		if signedOut {
			c.notify(ctx, EventSignedOut, nil)
		}
		return nil, metrics.ResultError, err
	}

	// The server has rotated the refresh token; the old one is spent even if
	// the caller has gone away, so keep the new pair regardless of ctx.
	c.install(next)
	if perr := c.storage.Persist(context.WithoutCancel(ctx), c.cfg.StorageKey, next); perr != nil {
		c.logger.Error("failed to persist refreshed session", "error", perr)
	}
	c.finish(p, next, nil)
	c.notify(ctx, EventTokenRefreshed, next)
	return next, metrics.ResultSuccess, nil
}

// finish clears p from the pending slot and settles it. Only the first call
// for a given p has an effect. The slot is cleared first so waiters that
// retry after errFlightAbandoned never find p again.
func (c *Coordinator) finish(p *deferred.Deferred[*Session], s *Session, err error) {
	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()

	if err != nil {
		p.Reject(err)
	} else {
		p.Resolve(s)
	}
}

// StartAutoRefresh starts a background loop that refreshes the session when
// it gets within AutoRefreshTick*AutoRefreshTickThreshold of expiry. It
// backs up the scheduled refresh when timers are delayed, for example while
// the host sleeps.
func (c *Coordinator) StartAutoRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.autoStop != nil {
		return
	}

	stop := make(chan struct{})
	c.autoStop = stop
	c.wg.Add(1)
	go c.autoRefreshLoop(stop)
}

// StopAutoRefresh stops the loop started by StartAutoRefresh.
func (c *Coordinator) StopAutoRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoStop != nil {
		close(c.autoStop)
		c.autoStop = nil
	}
}

func (c *Coordinator) autoRefreshLoop(stop <-chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.AutoRefreshTick)
	defer ticker.Stop()

	c.autoRefreshTick()
	for {
		select {
		case <-stop:
			return
		case <-c.bgCtx.Done():
			return
		case <-ticker.C:
			c.autoRefreshTick()
		}
	}
}

func (c *Coordinator) autoRefreshTick() {
	s := c.current.Load()
	if s == nil {
		return
	}
	window := c.cfg.AutoRefreshTick * time.Duration(c.cfg.AutoRefreshTickThreshold)
	if !s.ExpiresWithin(c.now(), window) {
		return
	}
	if _, err := c.RefreshSession(c.bgCtx, false); err != nil {
		c.logger.Warn("auto refresh failed", "error", err)
	}
}

// Close stops scheduled and background refreshes, cancels an exchange in
// flight and waits for them to return.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopTimerLocked()
	if c.autoStop != nil {
		close(c.autoStop)
		c.autoStop = nil
	}
	c.mu.Unlock()

	c.bgCancel()
	c.wg.Wait()
	c.notifier.Close()
	return nil
}

// install makes s current and schedules its refresh. Callers hold the session lock.
func (c *Coordinator) install(s *Session) {
	c.current.Store(s)
	c.schedule(s)
}

// clearSession drops the session and its schedule. Callers hold the session lock.
func (c *Coordinator) clearSession(ctx context.Context) error {
	c.current.Store(nil)
	c.mu.Lock()
	c.stopTimerLocked()
	c.mu.Unlock()

	if err := c.storage.Remove(context.WithoutCancel(ctx), c.cfg.StorageKey); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// schedule arms a refresh ExpiryMargin before s expires.
func (c *Coordinator) schedule(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	exp := s.Expiry()
	if c.closed || exp.IsZero() {
		return
	}
	delay := max(exp.Sub(c.now())-c.cfg.ExpiryMargin, 0)
	c.armLocked(delay)
}

// rearm schedules another attempt for s unless s was replaced or a newer
// timer exists.
func (c *Coordinator) rearm(s *Session, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.timer != nil || c.current.Load() != s {
		return
	}
	c.armLocked(delay)
}

func (c *Coordinator) armLocked(delay time.Duration) {
	c.timerGen++
	gen := c.timerGen
	c.timer = c.cfg.Scheduler.AfterFunc(delay, func() { c.onTimer(gen) })
	c.logger.Debug("scheduled session refresh", "in", delay)
}

func (c *Coordinator) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Coordinator) onTimer(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	s := c.current.Load()
	if s == nil {
		return
	}

	// Timers can fire early after clock adjustments; check the wall clock.
	now := c.now()
	if !s.ExpiresWithin(now, c.cfg.ExpiryMargin) {
		c.rearm(s, s.Expiry().Sub(now)-c.cfg.ExpiryMargin)
		return
	}

	if _, err := c.RefreshSession(c.bgCtx, false); err != nil {
		if errors.Is(err, ErrSessionMissing) || errors.Is(err, ErrClosed) || c.bgCtx.Err() != nil {
			return
		}
		c.logger.Warn("scheduled refresh failed, retrying", "in", c.cfg.AutoRefreshTick, "error", err)
		if cur := c.current.Load(); cur != nil {
			c.rearm(cur, c.cfg.AutoRefreshTick)
		}
	}
}

func (c *Coordinator) notify(ctx context.Context, event Event, s *Session) {
	c.notifier.Notify(context.WithoutCancel(ctx), event, s)
}

func (c *Coordinator) lockTimeout() time.Duration {
	if c.cfg.LockAcquireTimeout <= 0 {
		return lock.WaitForever
	}
	return c.cfg.LockAcquireTimeout
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Coordinator) now() time.Time {
	return c.cfg.Now()
}
