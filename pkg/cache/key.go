package cache

import "strings"

// Redis key layout for cache entries and the bucket registry.
const (
	keyPrefix = "asset"

	// registryKey is the set of live bucket names, maintained by Open and
	// DeleteBucket so Cleanup can enumerate generations.
	registryKey = "asset:buckets"
)

// Key uniquely identifies a cached entry: bucket plus request identity
// (method + URL).
type Key struct {
	// Bucket is the versioned bucket name holding the entry.
	Bucket string

	// Method is the HTTP request method.
	Method string

	// URL is the requested resource URL.
	URL string
}

// String generates the Redis key for the entry.
// Format: asset:<bucket>:<method>:<url>
func (k Key) String() string {
	return strings.Join([]string{keyPrefix, k.Bucket, k.Method, k.URL}, ":")
}

// bucketPattern is the Redis SCAN pattern matching every entry of a bucket.
func bucketPattern(bucket string) string {
	return keyPrefix + ":" + bucket + ":*"
}
