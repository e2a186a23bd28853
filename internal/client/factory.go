// Package client wires a session coordinator from application config.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/internal/db"
	"github.com/jrschumacher/authsync/internal/logger"
	"github.com/jrschumacher/authsync/pkg/auth/lock"
	"github.com/jrschumacher/authsync/pkg/auth/metrics"
	"github.com/jrschumacher/authsync/pkg/auth/session"
	"github.com/jrschumacher/authsync/pkg/auth/transport"
)

// StorageBackend selects where sessions are persisted
type StorageBackend string

const (
	StorageBackendMemory StorageBackend = config.StorageMemory
	StorageBackendFile   StorageBackend = config.StorageFile
	StorageBackendSQL    StorageBackend = config.StorageSQL
)

// LockBackend selects how refreshes are serialized
type LockBackend string

const (
	LockBackendProcess LockBackend = config.LockProcess
	LockBackendFile    LockBackend = config.LockFile
)

// ErrNoTokenURL is returned by refreshes when no token endpoint is configured.
var ErrNoTokenURL = errors.New("token URL not configured (set AUTHSYNC_TOKEN_URL)")

// ParseStorageBackend converts a string to StorageBackend with validation
func ParseStorageBackend(s string) (StorageBackend, error) {
	switch s {
	case string(StorageBackendMemory), string(StorageBackendFile), string(StorageBackendSQL):
		return StorageBackend(s), nil
	default:
		return "", fmt.Errorf("invalid storage backend: %s (valid options: memory, file, sql)", s)
	}
}

// ParseLockBackend converts a string to LockBackend with validation
func ParseLockBackend(s string) (LockBackend, error) {
	switch s {
	case string(LockBackendProcess), string(LockBackendFile):
		return LockBackend(s), nil
	default:
		return "", fmt.Errorf("invalid lock backend: %s (valid options: process, file)", s)
	}
}

// Client bundles a coordinator with the resources it owns.
type Client struct {
	Coordinator *session.Coordinator
	Storage     session.Storage
	Metrics     *metrics.Collector
}

// Option customizes New.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	refresher  session.Refresher
}

// WithRegisterer registers the client's metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithRefresher replaces the OAuth2 refresher built from config.
func WithRefresher(r session.Refresher) Option {
	return func(o *options) { o.refresher = r }
}

// New validates cfg and builds a Client. Call Close when done.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	collector, err := metrics.New(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	refresher := o.refresher
	if refresher == nil {
		refresher, err = NewRefresher(cfg)
		if err != nil {
			return nil, err
		}
	}

	locker, err := NewLocker(cfg, collector)
	if err != nil {
		return nil, err
	}

	storage, err := NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	coordinator, err := session.New(refresher, storage, locker, session.Config{
		StorageKey:         cfg.StorageKey,
		LockAcquireTimeout: cfg.LockAcquireTimeout,
		ExpiryMargin:       cfg.ExpiryMargin,
		AutoRefreshTick:    cfg.AutoRefreshTick,
		Logger:             logger.Logger(),
		Metrics:            collector,
	})
	if err != nil {
		_ = storage.Close()
		return nil, err
	}

	return &Client{
		Coordinator: coordinator,
		Storage:     storage,
		Metrics:     collector,
	}, nil
}

// Close stops the coordinator and closes its storage.
func (c *Client) Close() error {
	return errors.Join(c.Coordinator.Close(), c.Storage.Close())
}

// NewStorage opens the configured session storage backend.
func NewStorage(ctx context.Context, cfg *config.Config) (session.Storage, error) {
	backend, err := ParseStorageBackend(cfg.StorageBackend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case StorageBackendMemory:
		return session.NewMemoryStorage(), nil
	case StorageBackendFile:
		dir, err := StorageDir(cfg)
		if err != nil {
			return nil, err
		}
		return session.NewFileStorage(dir), nil
	case StorageBackendSQL:
		return db.OpenSessionStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", backend)
	}
}

// NewLocker builds the configured lock backend.
func NewLocker(cfg *config.Config, collector *metrics.Collector) (lock.Locker, error) {
	backend, err := ParseLockBackend(cfg.LockBackend)
	if err != nil {
		return nil, err
	}

	log := logger.Component("lock")
	switch backend {
	case LockBackendProcess:
		return lock.NewProcessLock(lock.WithMetrics(collector), lock.WithLogger(log)), nil
	case LockBackendFile:
		dir := cfg.LockDir
		if dir == "" {
			if dir, err = StorageDir(cfg); err != nil {
				return nil, err
			}
		}
		return lock.NewFileLock(dir, lock.WithMetrics(collector), lock.WithLogger(log)), nil
	default:
		return nil, fmt.Errorf("unknown lock backend: %s", backend)
	}
}

// NewRefresher builds the OAuth2 refresher. Without a token URL it returns a
// refresher that always fails, so read-only commands still work.
func NewRefresher(cfg *config.Config) (session.Refresher, error) {
	if cfg.TokenURL == "" {
		return session.RefresherFunc(func(context.Context, string) (*session.Session, error) {
			return nil, ErrNoTokenURL
		}), nil
	}

	r, err := transport.NewOAuth2Refresher(transport.Config{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:       logger.Logger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token refresher: %w", err)
	}
	return r, nil
}

// StorageDir returns the configured storage directory, defaulting to
// <user config dir>/authsync.
func StorageDir(cfg *config.Config) (string, error) {
	if cfg.StorageDir != "" {
		return cfg.StorageDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	return filepath.Join(base, "authsync"), nil
}
