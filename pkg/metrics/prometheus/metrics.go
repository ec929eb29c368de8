// Package prometheus registers the service's Prometheus collectors.
//
// Counters are registered on the default registry and exposed through the
// API server's /metrics endpoint when metrics are enabled.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBAcquires counts successful connection checkouts from the pool.
	DBAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidepool_db_acquires_total",
		Help: "Total number of successful database connection acquisitions",
	})

	// DBPoolExhausted counts acquisitions that timed out because every
	// pooled connection was checked out.
	DBPoolExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidepool_db_pool_exhausted_total",
		Help: "Total number of connection acquisitions rejected due to pool exhaustion",
	})

	// CacheHits counts cache lookups that returned a value.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidepool_cache_hits_total",
		Help: "Total number of cache hits",
	})

	// CacheMisses counts cache lookups that found no value.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidepool_cache_misses_total",
		Help: "Total number of cache misses",
	})

	// CacheErrors counts cache operations that failed at the transport
	// level. These degrade to misses on the read path.
	CacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tidepool_cache_errors_total",
		Help: "Total number of cache operation errors",
	})

	// HTTPRequests counts completed HTTP requests by status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidepool_http_requests_total",
		Help: "Total number of HTTP requests served, by status code",
	}, []string{"code"})
)
