// Package metrics provides the centralized Prometheus metrics registry for
// the asset cache. All metrics are defined in their respective packages
// (gateway, cache, precache, revalidate, strategy) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the asset cache.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Gateway Metrics (pkg/gateway):
//   - assetcache_fetches_total{outcome} (Counter): Origin fetches by outcome (success, error, transport_error)
//   - assetcache_fallbacks_total{outcome} (Counter): Fallback resolutions by outcome (matched, stripped, exhausted)
//
// Store Metrics (pkg/cache):
//   - assetcache_store_errors_total{operation} (Counter): Redis store errors by operation (open, put, match, list, delete)
//   - assetcache_stored_bytes_total{bucket} (Counter): Bytes written per cache bucket
//   - assetcache_buckets_deleted_total (Counter): Stale buckets swept during activation
//   - assetcache_precached_urls_total{outcome} (Counter): Precache URL results (stored, failed)
//
// Precache Metrics (pkg/precache):
//   - assetcache_precache_retries_total (Counter): Retried precache fetch attempts
//   - assetcache_precache_duration_seconds (Histogram): Wall time of full precache runs
//
// Revalidation Governor Metrics (pkg/revalidate):
//   - assetcache_revalidation_skips_total{reason} (Counter): Skipped refreshes (fresh, backoff)
//
// Strategy Metrics (pkg/strategy):
//   - assetcache_requests_total{strategy, outcome} (Counter): Served requests by strategy and outcome (hit, miss)
//   - assetcache_revalidations_total{outcome} (Counter): Background refreshes by outcome (stored, fetch_failed, store_failed, skipped)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(assetcache_requests_total{outcome="hit"}[5m])) /
//   sum(rate(assetcache_requests_total{outcome=~"hit|miss"}[5m]))
//
//   # Fallback Recovery Rate
//   rate(assetcache_fallbacks_total{outcome="recovered"}[5m]) /
//   rate(assetcache_fallbacks_total[5m])
//
//   # Revalidation Failure Rate
//   rate(assetcache_revalidations_total{outcome="error"}[5m])
//
//   # P95 Precache Duration
//   histogram_quantile(0.95, rate(assetcache_precache_duration_seconds_bucket[5m]))
