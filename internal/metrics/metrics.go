// Package metrics collects and exposes Prometheus metrics for the
// auth core: cache effectiveness, detached notification outcomes and
// rate-limit pressure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the interface consumed by the middleware and services.
type Recorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheError()
	RecordNotifySuccess()
	RecordNotifyFailure(reason string)
	RecordRateLimited(endpoint string)
}

// Collector implements Recorder on top of a Prometheus registry.
type Collector struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	cacheErrors prometheus.Counter
	notifyOK    prometheus.Counter
	notifyFail  *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	registry    *prometheus.Registry
}

// NewCollector creates a Collector and registers its metrics on the
// given registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_cache_hits_total",
			Help: "Auth cache snapshot hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_cache_misses_total",
			Help: "Auth cache misses (including absent keys).",
		}),
		cacheErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_cache_errors_total",
			Help: "Auth cache backend failures, all degraded to misses.",
		}),
		notifyOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_notifications_sent_total",
			Help: "Detached verification notifications delivered.",
		}),
		notifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_notifications_failed_total",
			Help: "Detached verification notifications that failed or timed out.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_rate_limited_total",
			Help: "Requests denied by the fixed-window limiter.",
		}, []string{"endpoint"}),
		registry: reg,
	}
	reg.MustRegister(c.cacheHits, c.cacheMisses, c.cacheErrors, c.notifyOK, c.notifyFail, c.rateLimited)
	return c
}

func (c *Collector) RecordCacheHit()      { c.cacheHits.Inc() }
func (c *Collector) RecordCacheMiss()     { c.cacheMisses.Inc() }
func (c *Collector) RecordCacheError()    { c.cacheErrors.Inc() }
func (c *Collector) RecordNotifySuccess() { c.notifyOK.Inc() }

func (c *Collector) RecordNotifyFailure(reason string) {
	c.notifyFail.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordRateLimited(endpoint string) {
	c.rateLimited.WithLabelValues(endpoint).Inc()
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Noop is a Recorder that discards everything. Used in tests.
type Noop struct{}

func (Noop) RecordCacheHit()            {}
func (Noop) RecordCacheMiss()           {}
func (Noop) RecordCacheError()          {}
func (Noop) RecordNotifySuccess()       {}
func (Noop) RecordNotifyFailure(string) {}
func (Noop) RecordRateLimited(string)   {}
