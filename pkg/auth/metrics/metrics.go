// Package metrics exports Prometheus collectors for lock and refresh activity.
//
// Every method is safe on a nil *Collector so packages can record metrics
// unconditionally and callers opt in by passing a collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authsync"

// Refresh outcome labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultAdopted = "adopted"
	ResultSkipped = "skipped"
)

// Collector holds the authsync metric vectors.
type Collector struct {
	lockAcquire  *prometheus.HistogramVec
	lockTimeouts *prometheus.CounterVec
	lockHeld     *prometheus.GaugeVec
	refreshes    *prometheus.CounterVec
	joined       prometheus.Counter
	refreshTime  prometheus.Histogram
}

// New creates a collector and registers it with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		lockAcquire: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_acquire_seconds",
			Help:      "Time spent waiting to acquire a named lock.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"name"}),
		lockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_timeouts_total",
			Help:      "Lock acquisitions that gave up before being granted.",
		}, []string{"name"}),
		lockHeld: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lock_held",
			Help:      "1 while the named lock is held.",
		}, []string{"name"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Session refresh attempts by outcome.",
		}, []string{"result"}),
		joined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_joined_total",
			Help:      "Refresh calls that joined an in-flight refresh instead of starting one.",
		}),
		refreshTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_seconds",
			Help:      "Duration of refresh exchanges, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prometheus.Collector{c.lockAcquire, c.lockTimeouts, c.lockHeld, c.refreshes, c.joined, c.refreshTime} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveAcquire records a successful acquisition after waiting d.
func (c *Collector) ObserveAcquire(name string, d time.Duration) {
	if c == nil {
		return
	}
	c.lockAcquire.WithLabelValues(name).Observe(d.Seconds())
	c.lockHeld.WithLabelValues(name).Set(1)
}

// ObserveRelease marks name as no longer held.
func (c *Collector) ObserveRelease(name string) {
	if c == nil {
		return
	}
	c.lockHeld.WithLabelValues(name).Set(0)
}

// IncAcquireTimeout counts an acquisition that timed out.
func (c *Collector) IncAcquireTimeout(name string) {
	if c == nil {
		return
	}
	c.lockTimeouts.WithLabelValues(name).Inc()
}

// ObserveRefresh records one refresh exchange.
func (c *Collector) ObserveRefresh(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.refreshes.WithLabelValues(result).Inc()
	c.refreshTime.Observe(d.Seconds())
}

// IncJoined counts a caller that joined an in-flight refresh.
func (c *Collector) IncJoined() {
	if c == nil {
		return
	}
	c.joined.Inc()
}
