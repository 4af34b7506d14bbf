package revalidate

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	skipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetcache_revalidation_skips_total",
		Help: "Background revalidations skipped by the governor, by reason",
	}, []string{"reason"}) // "fresh", "backoff"
)

// Config tunes the revalidation governor.
type Config struct {
	// MinInterval is the minimum time between background refreshes of the
	// same URL. Zero keeps eager revalidation on every request.
	MinInterval time.Duration

	// FailureThreshold is the consecutive-failure count that activates
	// backoff. Zero disables failure backoff.
	FailureThreshold int

	// FailureBackoff is how long a failing URL is left alone once the
	// threshold is reached.
	FailureBackoff time.Duration
}

// DefaultConfig keeps the eager always-revalidate behavior but backs off
// URLs whose origin keeps failing.
func DefaultConfig() Config {
	return Config{
		MinInterval:      0,
		FailureThreshold: 3,
		FailureBackoff:   30 * time.Second,
	}
}

// Tracker is the Redis-backed revalidation governor.
type Tracker struct {
	redis  *redis.Client
	config Config
	logger zerolog.Logger
}

// NewTracker creates a revalidation governor.
func NewTracker(redisClient *redis.Client, config Config, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		config: config,
		logger: logger,
	}
}

// ShouldRevalidate reports whether a background refresh of url should start.
// Governor state errors never block freshness: on any Redis failure the
// answer is true.
func (t *Tracker) ShouldRevalidate(ctx context.Context, url string) bool {
	state, err := t.getState(ctx, url)
	if err != nil {
		t.logger.Warn().Err(err).Str("url", url).Msg("Governor state read failed, allowing revalidation")
		return true
	}
	if state == nil {
		return true
	}

	if state.InBackoff(t.config.FailureThreshold, t.config.FailureBackoff) {
		skipsTotal.WithLabelValues("backoff").Inc()
		t.logger.Debug().
			Str("url", url).
			Int("failures", state.Failures).
			Msg("Skipping revalidation, failure backoff active")
		return false
	}

	if state.FreshWithin(t.config.MinInterval) {
		skipsTotal.WithLabelValues("fresh").Inc()
		return false
	}

	return true
}

// MarkRefreshed records a successful refresh and clears the failure streak.
func (t *Tracker) MarkRefreshed(ctx context.Context, url string) {
	state, err := t.getState(ctx, url)
	if err != nil || state == nil {
		state = &RefreshState{}
	}
	state.LastRefresh = time.Now()
	state.Failures = 0
	t.putState(ctx, url, state)
}

// MarkFailed records a failed refresh attempt.
func (t *Tracker) MarkFailed(ctx context.Context, url string) {
	state, err := t.getState(ctx, url)
	if err != nil || state == nil {
		state = &RefreshState{}
	}
	state.LastFailure = time.Now()
	state.Failures++
	t.putState(ctx, url, state)
}

func (t *Tracker) getState(ctx context.Context, url string) (*RefreshState, error) {
	data, err := t.redis.Get(ctx, RedisKeyPrefix+url).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state RefreshState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// putState writes best-effort: a failed write only costs one extra refresh.
func (t *Tracker) putState(ctx context.Context, url string, state *RefreshState) {
	data, err := json.Marshal(state)
	if err != nil {
		t.logger.Warn().Err(err).Str("url", url).Msg("Governor state encode failed")
		return
	}
	if err := t.redis.Set(ctx, RedisKeyPrefix+url, data, stateTTL).Err(); err != nil {
		t.logger.Warn().Err(err).Str("url", url).Msg("Governor state write failed")
	}
}
