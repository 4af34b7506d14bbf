// Package gateway wraps the raw network fetch primitive. It normalizes
// transport failures and non-success responses into typed network failures
// and implements the single hash-fallback retry for content-hashed asset
// URLs that are no longer deployed under their exact name.
package gateway

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/assetname"
	"github.com/plain-license/assetcache/pkg/faults"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetcache_fetches_total",
		Help: "Total origin fetches by outcome",
	}, []string{"outcome"}) // "success", "error", "transport_error"

	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assetcache_fallbacks_total",
		Help: "Total hash-fallback retries by outcome",
	}, []string{"outcome"}) // "matched", "stripped", "exhausted"
)

// URLSource supplies the configured URL set used for fallback matching.
type URLSource interface {
	URLs() []string
}

// Gateway performs origin fetches with typed failures and hash fallback.
type Gateway struct {
	httpClient *http.Client
	source     URLSource
	logger     zerolog.Logger
}

// New creates a gateway. source supplies the configured URL set consulted
// when a hashed filename misses; it may not be nil.
func New(httpClient *http.Client, source URLSource, logger zerolog.Logger) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Gateway{
		httpClient: httpClient,
		source:     source,
		logger:     logger,
	}
}

// Fetch performs a GET against rawurl. It fails with a network failure when
// the transport errors or the response status is non-success; the response
// is returned open otherwise and the caller owns the body.
func (g *Gateway) Fetch(ctx context.Context, rawurl string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, faults.Network("fetch", 0, "build request for "+rawurl, err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		fetchesTotal.WithLabelValues("transport_error").Inc()
		return nil, faults.Network("fetch", 0, "fetch "+rawurl, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fetchesTotal.WithLabelValues("error").Inc()
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, faults.Network("fetch", resp.StatusCode, "fetch "+rawurl, nil)
	}

	fetchesTotal.WithLabelValues("success").Inc()
	return resp, nil
}

// FetchWithFallback attempts the direct fetch and, on failure, retries once
// against the best alternate name for the resource: a configured URL whose
// filename matches the hash-agnostic pattern of the requested file, or
// failing that the hash-stripped path. Exactly one fallback attempt is
// made; if it also fails the gateway reports a network failure with
// status 500 wrapping the retry failure.
func (g *Gateway) FetchWithFallback(ctx context.Context, rawurl string) (*http.Response, error) {
	resp, err := g.Fetch(ctx, rawurl)
	if err == nil {
		return resp, nil
	}

	candidate, outcome := g.alternate(rawurl)
	fallbacksTotal.WithLabelValues(outcome).Inc()

	g.logger.Debug().
		Str("url", rawurl).
		Str("candidate", candidate).
		Str("match", outcome).
		Msg("Direct fetch failed, trying fallback")

	resp, retryErr := g.Fetch(ctx, candidate)
	if retryErr != nil {
		fallbacksTotal.WithLabelValues("exhausted").Inc()
		g.logger.Warn().
			Str("url", rawurl).
			Str("candidate", candidate).
			Int("status", faults.StatusOf(retryErr)).
			Msg("Fallback fetch exhausted")
		return nil, faults.Network("fallback", http.StatusInternalServerError, "fetch "+rawurl, retryErr)
	}

	return resp, nil
}

// alternate picks the single fallback candidate for rawurl: the configured
// URL matching the hash-agnostic filename pattern when one exists, else the
// hash-stripped path (which may equal the original for unhashed names).
func (g *Gateway) alternate(rawurl string) (candidate, outcome string) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return rawurl, "stripped"
	}

	if match, ok := assetname.FindAlternate(u.Path, g.source.URLs()); ok {
		return g.rebase(u, match), "matched"
	}

	stripped := *u
	stripped.Path = assetname.StripHash(u.Path)
	return stripped.String(), "stripped"
}

// rebase resolves a configured URL (usually origin-relative) against the
// scheme and host of the originally requested URL.
func (g *Gateway) rebase(base *url.URL, configured string) string {
	ref, err := url.Parse(configured)
	if err != nil {
		return configured
	}
	return base.ResolveReference(ref).String()
}
