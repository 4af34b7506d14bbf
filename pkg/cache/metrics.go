package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeErrors tracks blob-store operation failures.
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcache_store_errors_total",
			Help: "Total number of blob-store operation failures",
		},
		[]string{"operation"}, // "open", "put", "match", "list", "delete"
	)

	// storedBytes tracks bytes written per bucket.
	storedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcache_stored_bytes_total",
			Help: "Total bytes written to the cache by bucket",
		},
		[]string{"bucket"},
	)

	// bucketsDeleted tracks stale generations reclaimed by cleanup.
	bucketsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetcache_buckets_deleted_total",
			Help: "Total number of stale cache buckets deleted",
		},
	)

	// precachedURLs tracks URLs inserted during the install-phase precache.
	precachedURLs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcache_precached_urls_total",
			Help: "Total URLs processed during precache by outcome",
		},
		[]string{"outcome"}, // "stored", "failed"
	)
)
