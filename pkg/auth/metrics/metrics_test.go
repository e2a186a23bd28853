package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveAcquire("lock", time.Millisecond)
		c.ObserveRelease("lock")
		c.IncAcquireTimeout("lock")
		c.ObserveRefresh(ResultSuccess, time.Millisecond)
		c.IncJoined()
	})
}

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.ObserveAcquire("lock:a", 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lockHeld.WithLabelValues("lock:a")))
	c.ObserveRelease("lock:a")
	assert.Equal(t, 0.0, testutil.ToFloat64(c.lockHeld.WithLabelValues("lock:a")))

	c.IncAcquireTimeout("lock:a")
	c.IncAcquireTimeout("lock:a")
	assert.Equal(t, 2.0, testutil.ToFloat64(c.lockTimeouts.WithLabelValues("lock:a")))

	c.ObserveRefresh(ResultSuccess, time.Second)
	c.ObserveRefresh(ResultError, time.Second)
	c.ObserveRefresh(ResultSuccess, time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.refreshes.WithLabelValues(ResultSuccess)))

	c.IncJoined()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.joined))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}
