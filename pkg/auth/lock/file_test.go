package lock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock_ExcludesOtherInstances(t *testing.T) {
	dir := t.TempDir()
	a := NewFileLock(dir)
	b := NewFileLock(dir)
	ctx := context.Background()

	releaseA, err := a.Acquire(ctx, testName, WaitForever)
	require.NoError(t, err)

	_, err = os.Stat(a.Path(testName))
	require.NoError(t, err, "lock file should exist while held")

	_, err = b.Acquire(ctx, testName, 0)
	assert.True(t, IsAcquireTimeout(err))

	start := time.Now()
	_, err = b.Acquire(ctx, testName, 60*time.Millisecond)
	assert.True(t, IsAcquireTimeout(err))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	releaseA()

	releaseB, err := b.Acquire(ctx, testName, time.Second)
	require.NoError(t, err)
	releaseB()
}

func TestFileLock_WaitsForRelease(t *testing.T) {
	dir := t.TempDir()
	a := NewFileLock(dir)
	b := NewFileLock(dir)
	ctx := context.Background()

	releaseA, err := a.Acquire(ctx, testName, WaitForever)
	require.NoError(t, err)

	granted := make(chan error, 1)
	go func() {
		r, err := b.Acquire(ctx, testName, WaitForever)
		if err == nil {
			r()
		}
		granted <- err
	}()

	time.Sleep(30 * time.Millisecond)
	releaseA()

	select {
	case err := <-granted:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second file lock was never granted")
	}
}

func TestFileLock_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	a := NewFileLock(dir)
	b := NewFileLock(dir)

	releaseA, err := a.Acquire(context.Background(), testName, WaitForever)
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = b.Acquire(ctx, testName, WaitForever)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsAcquireTimeout(err))
}

func TestFileLock_PathIsStablePerName(t *testing.T) {
	f := NewFileLock("/tmp/locks")
	assert.Equal(t, f.Path("lock:a"), f.Path("lock:a"))
	assert.NotEqual(t, f.Path("lock:a"), f.Path("lock:b"))
	assert.Contains(t, f.Path("../../etc/passwd"), "/tmp/locks/authsync-")
}
