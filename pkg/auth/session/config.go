package session

import (
	"log/slog"
	"time"

	"github.com/jrschumacher/authsync/pkg/auth/metrics"
)

// Coordinator defaults.
const (
	DefaultStorageKey               = "authsync.session"
	DefaultExpiryMargin             = 60 * time.Second
	DefaultAutoRefreshTick          = 30 * time.Second
	DefaultAutoRefreshTickThreshold = 3
)

// Config tunes a Coordinator. The zero value is usable.
type Config struct {
	// StorageKey is the key the session is persisted under.
	StorageKey string

	// LockName defaults to "lock:" + StorageKey.
	LockName string

	// LockAcquireTimeout bounds the wait for the session lock. Zero or
	// negative waits until the caller's context is done.
	LockAcquireTimeout time.Duration

	// ExpiryMargin is how long before expiry a session counts as expiring.
	// Refreshes are scheduled this long before the access token expires.
	ExpiryMargin time.Duration

	// AutoRefreshTick and AutoRefreshTickThreshold drive the optional
	// background loop: every tick, a session expiring within
	// tick*threshold is refreshed.
	AutoRefreshTick          time.Duration
	AutoRefreshTickThreshold int

	Scheduler Scheduler
	Now       func() time.Time
	Logger    *slog.Logger
	Metrics   *metrics.Collector
}

// LockName returns the default lock name for a storage key.
func LockName(storageKey string) string {
	return "lock:" + storageKey
}

func (c Config) withDefaults() Config {
	if c.StorageKey == "" {
		c.StorageKey = DefaultStorageKey
	}
	if c.LockName == "" {
		c.LockName = LockName(c.StorageKey)
	}
	if c.ExpiryMargin <= 0 {
		c.ExpiryMargin = DefaultExpiryMargin
	}
	if c.AutoRefreshTick <= 0 {
		c.AutoRefreshTick = DefaultAutoRefreshTick
	}
	if c.AutoRefreshTickThreshold <= 0 {
		c.AutoRefreshTickThreshold = DefaultAutoRefreshTickThreshold
	}
	if c.Scheduler == nil {
		c.Scheduler = SystemScheduler{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
