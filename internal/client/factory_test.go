package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/pkg/auth/lock"
	"github.com/jrschumacher/authsync/pkg/auth/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AppEnv:             config.EnvTest,
		LogLevel:           "INFO",
		HTTPTimeout:        time.Second,
		StorageBackend:     config.StorageFile,
		StorageDir:         dir,
		StorageKey:         "test.session",
		LockBackend:        config.LockFile,
		LockAcquireTimeout: time.Second,
		ExpiryMargin:       time.Minute,
		AutoRefreshTick:    30 * time.Second,
	}
}

func TestParseStorageBackend(t *testing.T) {
	for _, s := range []string{"memory", "file", "sql"} {
		b, err := ParseStorageBackend(s)
		require.NoError(t, err)
		assert.Equal(t, StorageBackend(s), b)
	}
	_, err := ParseStorageBackend("redis")
	assert.Error(t, err)
}

func TestParseLockBackend(t *testing.T) {
	b, err := ParseLockBackend("process")
	require.NoError(t, err)
	assert.Equal(t, LockBackendProcess, b)

	_, err = ParseLockBackend("etcd")
	assert.Error(t, err)
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	s, err := NewStorage(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &session.FileStorage{}, s)

	cfg.StorageBackend = config.StorageMemory
	s, err = NewStorage(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryStorage{}, s)

	cfg.StorageBackend = config.StorageSQL
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "auth.db")
	s, err = NewStorage(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &session.SQLStorage{}, s)
	require.NoError(t, s.Close())
}

func TestNewLocker(t *testing.T) {
	cfg := testConfig(t)

	l, err := NewLocker(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &lock.FileLock{}, l)

	cfg.LockBackend = config.LockProcess
	l, err = NewLocker(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &lock.ProcessLock{}, l)
}

func TestNew_WithoutTokenURL(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testConfig(t), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Coordinator.SetSession(ctx, &session.Session{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		ExpiresIn:    3600,
	}))

	_, err = c.Coordinator.RefreshSession(ctx, false)
	assert.ErrorIs(t, err, ErrNoTokenURL)
	assert.Equal(t, "access-0", c.Coordinator.Session().AccessToken)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = "redis"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_SessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	refresher := session.RefresherFunc(func(context.Context, string) (*session.Session, error) {
		return &session.Session{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 3600}, nil
	})

	first, err := New(ctx, cfg, WithRefresher(refresher))
	require.NoError(t, err)
	require.NoError(t, first.Coordinator.SetSession(ctx, &session.Session{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		ExpiresIn:    3600,
	}))
	_, err = first.Coordinator.RefreshSession(ctx, false)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := New(ctx, cfg, WithRefresher(refresher))
	require.NoError(t, err)
	defer second.Close()

	s, err := second.Coordinator.Initialize(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "refresh-1", s.RefreshToken)
}
