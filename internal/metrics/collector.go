// Package metrics provides Prometheus metrics collection for OSF transfer
// and manipulation operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates client-side operation metrics on a private registry.
// A nil *Collector is valid and records nothing, so callers never need to
// guard call sites.
type Collector struct {
	registry *prometheus.Registry

	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	retryCounter      *prometheus.CounterVec
	rateLimitWaits    prometheus.Counter
}

// NewCollector creates a collector with the given metric namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "osffs"
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		operationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total operations by type and outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency by type",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"operation"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfer_bytes_total",
			Help:      "Bytes transferred by direction",
		}, []string{"direction"}),
		retryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry attempts by error code",
		}, []string{"code"}),
		rateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_waits_total",
			Help:      "Backoff waits caused by server throttling",
		}),
	}

	registry.MustRegister(
		c.operationCounter,
		c.operationDuration,
		c.transferBytes,
		c.retryCounter,
		c.rateLimitWaits,
	)
	return c
}

// RecordOperation records one completed operation.
func (c *Collector) RecordOperation(operation string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.operationCounter.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransfer records bytes moved in one direction ("upload" or
// "download").
func (c *Collector) RecordTransfer(direction string, bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.transferBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordRetry records one retry attempt for the given error code.
func (c *Collector) RecordRetry(code string) {
	if c == nil {
		return
	}
	c.retryCounter.WithLabelValues(code).Inc()
}

// RecordRateLimitWait records one throttling-induced backoff.
func (c *Collector) RecordRateLimitWait() {
	if c == nil {
		return
	}
	c.rateLimitWaits.Inc()
}

// Handler exposes the private registry for scraping; the consumer decides
// whether and where to mount it.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry, used by tests to gather samples.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
