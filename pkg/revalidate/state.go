// Package revalidate gates background cache refreshes. The stale-while-
// revalidate strategy starts a refresh on every request by default; the
// governor can damp that to a minimum interval per URL and back off URLs
// whose origin fetches keep failing. Governor state lives in Redis so it is
// shared across coordinator restarts, like the cache itself.
package revalidate

import "time"

// Redis key prefix for per-URL refresh state.
const RedisKeyPrefix = "asset:revalidate:"

// stateTTL bounds how long per-URL state is retained without activity.
const stateTTL = 24 * time.Hour

// RefreshState is the per-URL freshness record.
type RefreshState struct {
	// LastRefresh is when the URL was last successfully refreshed.
	LastRefresh time.Time `json:"last_refresh"`

	// LastFailure is when the most recent refresh attempt failed.
	LastFailure time.Time `json:"last_failure"`

	// Failures counts consecutive failed refresh attempts. Reset on success.
	Failures int `json:"failures"`
}

// FreshWithin reports whether the URL was refreshed within interval.
// A zero interval never reports fresh (eager revalidation).
func (s *RefreshState) FreshWithin(interval time.Duration) bool {
	if interval <= 0 || s.LastRefresh.IsZero() {
		return false
	}
	return time.Since(s.LastRefresh) < interval
}

// InBackoff reports whether the URL has failed at least threshold
// consecutive times with the most recent failure inside the backoff window.
func (s *RefreshState) InBackoff(threshold int, backoff time.Duration) bool {
	if threshold <= 0 || s.Failures < threshold {
		return false
	}
	return time.Since(s.LastFailure) < backoff
}
