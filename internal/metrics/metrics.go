// Package metrics holds the Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request cache
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sorare_cache_hits_total",
			Help: "Upstream requests served from the request cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sorare_cache_misses_total",
			Help: "Upstream requests not found in the request cache",
		},
	)

	CacheRateLimitShortCircuits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sorare_cache_rate_limit_short_circuits_total",
			Help: "Requests rejected locally because their key is in a rate-limit cooldown",
		},
	)

	CacheRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sorare_cache_retries_total",
			Help: "Upstream retries performed after a transient failure",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sorare_cache_entries",
			Help: "Current number of entries in the request cache",
		},
	)

	// Upstream client
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorare_upstream_requests_total",
			Help: "GraphQL calls to the Sorare API by outcome",
		},
		[]string{"outcome"}, // "success", "rate_limited", "unavailable", "graphql_error", "unknown"
	)

	UpstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sorare_upstream_request_duration_seconds",
			Help:    "Duration of GraphQL calls to the Sorare API",
			Buckets: prometheus.DefBuckets,
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Ingestion
	CollectionFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorare_collection_fetches_total",
			Help: "Collection lookups by status",
		},
		[]string{"status"},
	)

	CollectionPages = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sorare_collection_pages",
			Help:    "Number of pages fetched per collection lookup",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sorare_persistence_failures_total",
			Help: "Records that failed to persist during an ingest",
		},
		[]string{"record"},
	)

	// HTTP surface
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordHTTPRequest observes one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
