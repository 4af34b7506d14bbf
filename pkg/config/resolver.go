package config

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DefaultManifestPath is the manifest resource served by the origin.
const DefaultManifestPath = "/meta.json"

// manifest field names that are not retained URLs.
const (
	fieldCacheName = "cacheName"
	fieldVersion   = "version"
)

// Resolver obtains the active cache configuration from the origin manifest.
type Resolver struct {
	httpClient   *http.Client
	origin       string
	manifestPath string
	logger       zerolog.Logger
}

// NewResolver creates a manifest resolver for the given origin
// (scheme://host). An empty manifestPath selects DefaultManifestPath.
func NewResolver(httpClient *http.Client, origin, manifestPath string, logger zerolog.Logger) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if manifestPath == "" {
		manifestPath = DefaultManifestPath
	}
	return &Resolver{
		httpClient:   httpClient,
		origin:       origin,
		manifestPath: manifestPath,
		logger:       logger,
	}
}

// Resolve returns the active configuration. A configuration with a
// non-empty URL set is returned unchanged. Otherwise the manifest is
// fetched and merged over current: cacheName and version override the
// defaults, and every remaining top-level string field is treated as a URL
// to retain. Resolution never fails; on any fetch or decode error the
// prior configuration is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, current CacheConfig) CacheConfig {
	if current.Configured() {
		return current
	}

	manifestURL := r.origin + r.manifestPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		r.logger.Error().Err(err).Str("url", manifestURL).Msg("Build manifest request failed")
		return current
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn().Err(err).Str("url", manifestURL).Msg("Manifest fetch failed, keeping prior configuration")
		return current
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Warn().
			Str("url", manifestURL).
			Int("status", resp.StatusCode).
			Msg("Manifest fetch returned non-success status, keeping prior configuration")
		io.Copy(io.Discard, resp.Body)
		return current
	}

	var fields map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		r.logger.Warn().Err(err).Str("url", manifestURL).Msg("Manifest decode failed, keeping prior configuration")
		return current
	}

	resolved := r.merge(current, fields)
	r.logger.Info().
		Str("bucket", resolved.BucketName()).
		Int("urls", len(resolved.URLs)).
		Msg("Configuration resolved from manifest")
	return resolved
}

// merge overlays manifest fields onto current. JSON object order is not
// preserved by the decoder, so URL fields are collected in sorted field
// order for determinism.
func (r *Resolver) merge(current CacheConfig, fields map[string]any) CacheConfig {
	resolved := current

	if name, ok := fields[fieldCacheName].(string); ok && name != "" {
		resolved.Name = name
	}
	if version, ok := fields[fieldVersion].(float64); ok {
		resolved.Version = int(version)
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == fieldCacheName || name == fieldVersion {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	urls := make([]string, 0, len(names))
	for _, name := range names {
		url, ok := fields[name].(string)
		if !ok {
			r.logger.Debug().Str("field", name).Msg("Skipping non-string manifest field")
			continue
		}
		urls = append(urls, url)
	}
	resolved.URLs = urls

	return resolved
}
