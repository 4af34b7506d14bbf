package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/plain-license/assetcache/pkg/faults"
)

// ErrCacheMiss indicates the requested key was not found in the bucket.
var ErrCacheMiss = errors.New("cache miss")

// Store mediates all reads and writes against the Redis blob store. The
// store itself outlives coordinator restarts; Store only brokers access.
type Store struct {
	redis *redis.Client
}

// NewStore creates a blob store wrapper with a Redis backend.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

// Open registers bucket in the bucket registry so Cleanup can enumerate it
// later. Opening an already registered bucket is a no-op.
func (s *Store) Open(ctx context.Context, bucket string) error {
	if err := s.redis.SAdd(ctx, registryKey, bucket).Err(); err != nil {
		storeErrors.WithLabelValues("open").Inc()
		return faults.Cache("open", "register bucket "+bucket, err)
	}
	return nil
}

// Put stores an entry under its request identity. Concurrent keyed writes
// are safe; last write wins per key.
func (s *Store) Put(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return faults.Cache("put", "entry cannot be nil", nil)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		storeErrors.WithLabelValues("put").Inc()
		return faults.Cache("put", "marshal entry for "+key.URL, err)
	}

	if err := s.redis.Set(ctx, key.String(), data, 0).Err(); err != nil {
		storeErrors.WithLabelValues("put").Inc()
		return faults.Cache("put", "store entry for "+key.URL, err)
	}

	storedBytes.WithLabelValues(key.Bucket).Add(float64(len(data)))
	return nil
}

// Match retrieves the entry stored under key. Returns ErrCacheMiss when the
// key is absent.
func (s *Store) Match(ctx context.Context, key Key) (*Entry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		storeErrors.WithLabelValues("match").Inc()
		return nil, faults.Cache("match", "lookup entry for "+key.URL, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		storeErrors.WithLabelValues("match").Inc()
		return nil, faults.Cache("match", "decode entry for "+key.URL, err)
	}

	return &entry, nil
}

// Buckets enumerates all registered bucket names.
func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	names, err := s.redis.SMembers(ctx, registryKey).Result()
	if err != nil {
		storeErrors.WithLabelValues("list").Inc()
		return nil, faults.Cache("list", "enumerate buckets", err)
	}
	return names, nil
}

// DeleteBucket removes every entry of bucket and unregisters it.
func (s *Store) DeleteBucket(ctx context.Context, bucket string) error {
	iter := s.redis.Scan(ctx, 0, bucketPattern(bucket), 0).Iterator()
	for iter.Next(ctx) {
		if err := s.redis.Del(ctx, iter.Val()).Err(); err != nil {
			storeErrors.WithLabelValues("delete").Inc()
			return faults.Cache("delete", "delete entry in bucket "+bucket, err)
		}
	}
	if err := iter.Err(); err != nil {
		storeErrors.WithLabelValues("delete").Inc()
		return faults.Cache("delete", "scan bucket "+bucket, err)
	}

	if err := s.redis.SRem(ctx, registryKey, bucket).Err(); err != nil {
		storeErrors.WithLabelValues("delete").Inc()
		return faults.Cache("delete", "unregister bucket "+bucket, err)
	}

	bucketsDeleted.Inc()
	return nil
}
