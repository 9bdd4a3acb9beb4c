package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks request latency by method, route, and status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "cardforge",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// CacheHitsTotal and CacheMissesTotal track C2 read-through behavior per namespace.
var CacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cardforge",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total number of cache hits by namespace.",
	},
	[]string{"namespace"},
)

var CacheMissesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cardforge",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total number of cache misses by namespace.",
	},
	[]string{"namespace"},
)

var CacheEvictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cardforge",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Total number of whole-namespace evictions.",
	},
	[]string{"namespace"},
)

// LockContentionTotal counts denied C3 lock acquisitions by key prefix.
var LockContentionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cardforge",
		Subsystem: "lock",
		Name:      "contention_total",
		Help:      "Total number of lock acquisitions that failed because the key was already held.",
	},
	[]string{"key_prefix"},
)

// RateLimitRejectedTotal counts C4 429 responses by endpoint class.
var RateLimitRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cardforge",
		Subsystem: "ratelimit",
		Name:      "rejected_total",
		Help:      "Total number of requests rejected by the token bucket rate limiter.",
	},
	[]string{"endpoint_class"},
)

// QueueDepth tracks the current length of each named work queue (C5).
var QueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "cardforge",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Current number of pending messages in a named queue.",
	},
	[]string{"queue"},
)

// DispatchedTotal and DispatchFailuresTotal track C6 dispatcher throughput.
var DispatchedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cardforge",
		Subsystem: "dispatcher",
		Name:      "dispatched_total",
		Help:      "Total number of messages successfully dispatched by queue and type.",
	},
	[]string{"queue", "type"},
)

var DispatchFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "cardforge",
		Subsystem: "dispatcher",
		Name:      "failures_total",
		Help:      "Total number of handler failures by queue and type.",
	},
	[]string{"queue", "type"},
)

// All returns all cardforge metrics for registration against a Prometheus registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		CacheEvictionsTotal,
		LockContentionTotal,
		RateLimitRejectedTotal,
		QueueDepth,
		DispatchedTotal,
		DispatchFailuresTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors and every cardforge metric pre-registered.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
