// Package cache owns the asset cache lifecycle against the Redis blob store.
//
// Entries are partitioned into named, versioned buckets; one bucket holds one
// generation of cached assets. A registry set tracks every live bucket name so
// that activation can sweep the generations orphaned by a name or version
// change.
//
// The Manager is the single owner of the active CacheConfig and moves through
// three phases:
//
//	Uninitialized --Init--> Ready --Precache--> Precached
//
// Init resolves the configuration from the origin manifest and never fails
// (it degrades to the last-known configuration). Precache opens the current
// bucket and bulk-inserts every configured URL. Cleanup, callable from any
// phase, deletes every bucket whose name differs from the current one.
//
// Blob-store failures surface as cache failures (pkg/faults); a lookup miss
// is the ErrCacheMiss sentinel, not a failure.
package cache
