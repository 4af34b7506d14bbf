package precache

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/faults"
)

var (
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assetcache_precache_retries_total",
		Help: "Total number of precache fetch retry attempts",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "assetcache_precache_duration_seconds",
		Help:    "Duration of precache batch runs in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Config holds batch fetcher configuration.
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches.
	MaxConcurrency int

	// Timeout per URL fetch, including retries.
	Timeout time.Duration

	// MaxAttempts is the attempt budget per URL (including the first).
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration
}

// DefaultConfig returns safe defaults for origin-friendly precaching.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        15 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// FetchFunc fetches a single URL.
type FetchFunc func(ctx context.Context, url string) (*http.Response, error)

// SinkFunc stores a fetched response under its URL. The sink owns closing
// the response body.
type SinkFunc func(ctx context.Context, url string, resp *http.Response) error

// Result is the outcome of precaching one URL.
type Result struct {
	URL string
	Err error
}

// Fetcher bulk-fetches URL sets through a bounded worker pool.
type Fetcher struct {
	fetch  FetchFunc
	sink   SinkFunc
	config Config
	logger zerolog.Logger
}

// New creates a batch fetcher. fetch and sink may not be nil.
func New(fetch FetchFunc, sink SinkFunc, config Config, logger zerolog.Logger) *Fetcher {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 500 * time.Millisecond
	}

	return &Fetcher{
		fetch:  fetch,
		sink:   sink,
		config: config,
		logger: logger,
	}
}

// FetchAll fetches and stores every URL in parallel. All URLs are attempted;
// the returned error is the first per-URL failure (nil when the whole batch
// succeeded) and results carries the per-URL outcomes.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([]Result, error) {
	start := time.Now()
	defer func() {
		batchDuration.Observe(time.Since(start).Seconds())
	}()

	f.logger.Info().Int("urls", len(urls)).Msg("Starting precache batch")

	queue := make(chan string, len(urls))
	for _, u := range urls {
		queue <- u
	}
	close(queue)

	resultCh := make(chan Result, len(urls))
	var wg sync.WaitGroup
	for i := 0; i < f.config.MaxConcurrency; i++ {
		wg.Add(1)
		go f.worker(ctx, queue, resultCh, &wg)
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]Result, 0, len(urls))
	var firstErr error
	for result := range resultCh {
		results = append(results, result)
		if result.Err != nil && firstErr == nil {
			firstErr = result.Err
		}
	}

	f.logger.Info().
		Int("urls", len(urls)).
		Int("failed", countFailed(results)).
		Dur("duration", time.Since(start)).
		Msg("Precache batch complete")

	return results, firstErr
}

func (f *Fetcher) worker(ctx context.Context, queue <-chan string, results chan<- Result, wg *sync.WaitGroup) {
	defer wg.Done()

	for url := range queue {
		select {
		case <-ctx.Done():
			results <- Result{URL: url, Err: ctx.Err()}
			continue
		default:
		}

		urlCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
		err := f.fetchOne(urlCtx, url)
		cancel()

		if err != nil {
			f.logger.Warn().Err(err).Str("url", url).Msg("Precache fetch failed")
		}
		results <- Result{URL: url, Err: err}
	}
}

// fetchOne fetches and stores a single URL, retrying transient failures
// (transport errors and 5xx responses) with exponential backoff and jitter.
// Client errors are not retried.
func (f *Fetcher) fetchOne(ctx context.Context, url string) error {
	backoff := f.config.InitialBackoff

	var lastErr error
	for attempt := 1; attempt <= f.config.MaxAttempts; attempt++ {
		resp, err := f.fetch(ctx, url)
		if err == nil {
			return f.sink(ctx, url, resp)
		}
		lastErr = err

		if !retriable(err) || attempt >= f.config.MaxAttempts {
			break
		}

		retriesTotal.Inc()
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		f.logger.Debug().
			Str("url", url).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying precache fetch after backoff")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter):
		}
		backoff *= 2
	}

	return lastErr
}

// retriable reports whether a fetch failure is transient: transport errors
// (no status) and server errors retry; client errors do not.
func retriable(err error) bool {
	if !faults.IsNetwork(err) {
		return false
	}
	status := faults.StatusOf(err)
	return status == 0 || status >= 500
}

func countFailed(results []Result) int {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	return failed
}
