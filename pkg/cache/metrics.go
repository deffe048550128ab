package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by outcome kind
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchdl_cache_hits_total",
			Help: "Total number of outcome cache hits",
		},
		[]string{"kind"}, // "found", "absent"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchdl_cache_misses_total",
			Help: "Total number of outcome cache misses",
		},
	)

	// CacheStoredBytes tracks bytes written to Redis
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batchdl_cache_stored_bytes_total",
			Help: "Total bytes of outcome entries written to Redis",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchdl_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
