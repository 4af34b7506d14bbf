// Package strategy implements the two serving strategies over the cache and
// the fetch gateway, and selects one per request from an explicit
// extension-to-strategy table.
//
// Cache-first serves the cached entry when present and only touches the
// network on a miss. Stale-while-revalidate serves the cached entry
// immediately while refreshing the cache from the network in the background,
// trading up to one generation of staleness for zero network latency on hits.
package strategy

import (
	"context"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/cache"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetcache_requests_total",
		Help: "Requests served by strategy and cache outcome",
	}, []string{"strategy", "outcome"}) // outcome: "hit", "miss"

	revalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetcache_revalidations_total",
		Help: "Background revalidations by outcome",
	}, []string{"outcome"}) // "stored", "fetch_failed", "store_failed", "skipped"
)

// Strategy tags the serving strategy selected for a request.
type Strategy string

const (
	// StrategyCacheFirst serves from cache, fetching only on a miss.
	StrategyCacheFirst Strategy = "cache_first"

	// StrategyStaleWhileRevalidate serves from cache while refreshing it in
	// the background.
	StrategyStaleWhileRevalidate Strategy = "stale_while_revalidate"
)

// strategyByExtension is the strategy-selection table. Deploy-tracking text
// resources revalidate in the background; everything else (images, fonts,
// media) is served cache-first.
var strategyByExtension = map[string]Strategy{
	".js":   StrategyStaleWhileRevalidate,
	".css":  StrategyStaleWhileRevalidate,
	".html": StrategyStaleWhileRevalidate,
	".json": StrategyStaleWhileRevalidate,
}

// Classify maps a URL path to the strategy serving it.
func Classify(urlPath string) Strategy {
	ext := strings.ToLower(path.Ext(urlPath))
	if s, ok := strategyByExtension[ext]; ok {
		return s
	}
	return StrategyCacheFirst
}

// Cache is the slice of the cache manager the engine consumes.
type Cache interface {
	Match(ctx context.Context, url string) (*cache.Entry, error)
	Put(ctx context.Context, url string, resp *http.Response) error
	FallbackFetch(ctx context.Context, url string) (*http.Response, error)
}

// Governor optionally gates background revalidations.
type Governor interface {
	ShouldRevalidate(ctx context.Context, url string) bool
	MarkRefreshed(ctx context.Context, url string)
	MarkFailed(ctx context.Context, url string)
}

// Engine dispatches requests to the serving strategies.
type Engine struct {
	cache    Cache
	governor Governor
	logger   zerolog.Logger

	// tasks tracks detached revalidation goroutines so they are never
	// silently dropped; Wait drains them.
	tasks sync.WaitGroup
}

// NewEngine creates a strategy engine. governor may be nil, in which case
// every stale-while-revalidate request starts a background refresh.
func NewEngine(c Cache, governor Governor, logger zerolog.Logger) *Engine {
	return &Engine{
		cache:    c,
		governor: governor,
		logger:   logger,
	}
}

// Serve classifies url and dispatches it to the selected strategy.
func (e *Engine) Serve(ctx context.Context, url string) (*http.Response, error) {
	switch Classify(url) {
	case StrategyStaleWhileRevalidate:
		return e.StaleWhileRevalidate(ctx, url)
	default:
		return e.CacheFirst(ctx, url)
	}
}

// CacheFirst returns the cached entry if present, guaranteeing zero network
// round-trips on a hit. On a miss it fetches via the fallback gateway,
// stores a copy and returns the live response; fetch failures propagate.
func (e *Engine) CacheFirst(ctx context.Context, url string) (*http.Response, error) {
	entry, err := e.cache.Match(ctx, url)
	if err == nil {
		requestsTotal.WithLabelValues(string(StrategyCacheFirst), "hit").Inc()
		return cache.EntryToResponse(entry), nil
	}
	if err != cache.ErrCacheMiss {
		// Cache failures degrade to a network fetch rather than failing
		// the request.
		e.logger.Warn().Err(err).Str("url", url).Msg("Cache lookup failed, falling back to network")
	}
	requestsTotal.WithLabelValues(string(StrategyCacheFirst), "miss").Inc()

	resp, err := e.cache.FallbackFetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(ctx, url, resp); err != nil {
		e.logger.Warn().Err(err).Str("url", url).Msg("Failed to store fetched entry")
	}
	return resp, nil
}

// StaleWhileRevalidate looks up the cached entry and starts the background
// refresh before deciding what to return; the network fetch begins even on
// a cache hit, which is what keeps the cache fresh. A cached entry is
// returned immediately; on a miss the network result is awaited. Background
// refresh failures are logged and recorded but never affect an
// already-returned cached response.
func (e *Engine) StaleWhileRevalidate(ctx context.Context, url string) (*http.Response, error) {
	entry, err := e.cache.Match(ctx, url)
	if err != nil && err != cache.ErrCacheMiss {
		e.logger.Warn().Err(err).Str("url", url).Msg("Cache lookup failed")
		entry = nil
	}

	// The governor may damp refreshes of a recently refreshed or failing
	// URL, but only when a cached copy exists to serve.
	if entry != nil && e.governor != nil && !e.governor.ShouldRevalidate(ctx, url) {
		revalidationsTotal.WithLabelValues("skipped").Inc()
		requestsTotal.WithLabelValues(string(StrategyStaleWhileRevalidate), "hit").Inc()
		return cache.EntryToResponse(entry), nil
	}

	result := e.beginRevalidate(ctx, url)

	if entry != nil {
		requestsTotal.WithLabelValues(string(StrategyStaleWhileRevalidate), "hit").Inc()
		return cache.EntryToResponse(entry), nil
	}

	requestsTotal.WithLabelValues(string(StrategyStaleWhileRevalidate), "miss").Inc()
	r := <-result
	return r.resp, r.err
}

// Prime warms the cache for url with a cache-first pass, discarding the
// response. Used when the host pushes new URLs at runtime.
func (e *Engine) Prime(ctx context.Context, url string) error {
	resp, err := e.CacheFirst(ctx, url)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Wait blocks until all in-flight background revalidations finish.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

type fetchResult struct {
	resp *http.Response
	err  error
}

// beginRevalidate starts the detached refresh task. It runs on a context
// that survives cancellation of the request that triggered it: a request
// can outlive a page navigation and the refresh must still land.
func (e *Engine) beginRevalidate(ctx context.Context, url string) <-chan fetchResult {
	result := make(chan fetchResult, 1)
	bg := context.WithoutCancel(ctx)

	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()

		resp, err := e.cache.FallbackFetch(bg, url)
		if err != nil {
			revalidationsTotal.WithLabelValues("fetch_failed").Inc()
			if e.governor != nil {
				e.governor.MarkFailed(bg, url)
			}
			e.logger.Warn().Err(err).Str("url", url).Msg("Background revalidation fetch failed")
			result <- fetchResult{err: err}
			return
		}

		if err := e.cache.Put(bg, url, resp); err != nil {
			revalidationsTotal.WithLabelValues("store_failed").Inc()
			e.logger.Warn().Err(err).Str("url", url).Msg("Background revalidation store failed")
		} else {
			revalidationsTotal.WithLabelValues("stored").Inc()
			if e.governor != nil {
				e.governor.MarkRefreshed(bg, url)
			}
		}
		result <- fetchResult{resp: resp}
	}()

	return result
}
