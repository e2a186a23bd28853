package deferred

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIsIdempotent(t *testing.T) {
	d := New[string]()

	assert.True(t, d.Resolve("first"))
	assert.False(t, d.Resolve("second"))
	assert.False(t, d.Reject(errors.New("late")))

	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestRejectIsIdempotent(t *testing.T) {
	d := New[int]()
	boom := errors.New("boom")

	assert.True(t, d.Reject(boom))
	assert.False(t, d.Resolve(42))

	_, err := d.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestManyReadersSeeSameValue(t *testing.T) {
	d := New[int]()

	const readers = 16
	results := make([]int, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := d.Wait(context.Background())
			if err == nil {
				results[i] = v
			}
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	d.Resolve(7)
	wg.Wait()

	for i, v := range results {
		assert.Equal(t, 7, v, "reader %d", i)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	d := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := d.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, d.Settled(), "cancelled wait must not settle the deferred")

	d.Resolve(1)
	v, err := d.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestResultBeforeAndAfterSettle(t *testing.T) {
	d := New[string]()

	_, err := d.Result()
	assert.ErrorIs(t, err, ErrNotSettled)

	d.Resolve("ok")
	v, err := d.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.True(t, d.Settled())
}
