package cache

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/config"
	"github.com/plain-license/assetcache/pkg/faults"
	"github.com/plain-license/assetcache/pkg/gateway"
	"github.com/plain-license/assetcache/pkg/precache"
)

// Phase is the manager's lifecycle state.
type Phase int

const (
	// PhaseUninitialized is the state before Init has resolved configuration.
	PhaseUninitialized Phase = iota

	// PhaseReady means configuration is resolved and the bucket can be used.
	PhaseReady

	// PhasePrecached means the configured URL set has been bulk-inserted.
	PhasePrecached
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhasePrecached:
		return "precached"
	default:
		return "uninitialized"
	}
}

// ManagerConfig holds the manager's collaborators and initial state.
type ManagerConfig struct {
	// Store is the blob-store wrapper (required).
	Store *Store

	// Resolver resolves configuration from the origin manifest (required).
	Resolver *config.Resolver

	// Origin is scheme://host, used to absolutize configured relative URLs
	// (required).
	Origin string

	// HTTPClient is used for origin fetches (optional).
	HTTPClient *http.Client

	// Initial is the configuration used before Init resolves the manifest.
	Initial config.CacheConfig

	// Precache tunes the install-phase bulk fetcher.
	Precache precache.Config

	// Logger is the component logger.
	Logger zerolog.Logger
}

// Manager owns the active CacheConfig and the cache lifecycle, and mediates
// all reads and writes against the blob store.
type Manager struct {
	mu     sync.RWMutex
	cfg    config.CacheConfig
	phase  Phase
	origin string

	store    *Store
	resolver *config.Resolver
	gw       *gateway.Gateway
	precfg   precache.Config
	logger   zerolog.Logger
}

// NewManager creates a cache manager in the uninitialized phase.
func NewManager(mc ManagerConfig) (*Manager, error) {
	if mc.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if mc.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if mc.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}

	m := &Manager{
		cfg:      mc.Initial,
		origin:   strings.TrimSuffix(mc.Origin, "/"),
		store:    mc.Store,
		resolver: mc.Resolver,
		precfg:   mc.Precache,
		logger:   mc.Logger,
	}
	m.gw = gateway.New(mc.HTTPClient, m, mc.Logger)
	return m, nil
}

// Config returns a snapshot of the active configuration.
func (m *Manager) Config() config.CacheConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.cfg
	cfg.URLs = slices.Clone(m.cfg.URLs)
	return cfg
}

// URLs returns the configured URL set. Implements gateway.URLSource.
func (m *Manager) URLs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.cfg.URLs)
}

// BucketName returns the currently configured bucket name.
func (m *Manager) BucketName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.BucketName()
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Init resolves the active configuration and moves the manager to the ready
// phase. Resolution failure is absorbed: the manager proceeds with its
// last-known configuration rather than halting.
func (m *Manager) Init(ctx context.Context) {
	current := m.Config()
	resolved := m.resolver.Resolve(ctx, current)

	m.mu.Lock()
	m.cfg = resolved
	if m.phase < PhaseReady {
		m.phase = PhaseReady
	}
	m.mu.Unlock()

	m.logger.Info().
		Str("bucket", resolved.BucketName()).
		Int("urls", len(resolved.URLs)).
		Str("phase", PhaseReady.String()).
		Msg("Cache manager initialized")
}

// Precache opens the configured bucket and bulk-inserts every configured
// URL. It fails with a cache failure when the bucket cannot be opened or
// any insertion fails; entries inserted before a failure remain stored.
func (m *Manager) Precache(ctx context.Context) error {
	cfg := m.Config()
	bucket := cfg.BucketName()

	if err := m.store.Open(ctx, bucket); err != nil {
		return err
	}

	fetch := func(ctx context.Context, url string) (*http.Response, error) {
		return m.gw.Fetch(ctx, m.absolutize(url))
	}
	sink := func(ctx context.Context, url string, resp *http.Response) error {
		defer resp.Body.Close()
		return m.put(ctx, bucket, url, resp)
	}

	fetcher := precache.New(fetch, sink, m.precfg, m.logger)
	results, err := fetcher.FetchAll(ctx, cfg.URLs)
	for _, r := range results {
		if r.Err != nil {
			precachedURLs.WithLabelValues("failed").Inc()
		} else {
			precachedURLs.WithLabelValues("stored").Inc()
		}
	}
	if err != nil {
		return faults.Cache("precache", "bulk add configured urls to "+bucket, err)
	}

	m.mu.Lock()
	m.phase = PhasePrecached
	m.mu.Unlock()

	m.logger.Info().
		Str("bucket", bucket).
		Int("urls", len(cfg.URLs)).
		Msg("Precache complete")
	return nil
}

// Cleanup deletes every registered bucket whose name differs from the
// currently configured one. Changing the configured name or version is
// sufficient to orphan previous generations; this sweep reclaims them.
func (m *Manager) Cleanup(ctx context.Context) error {
	current := m.BucketName()

	names, err := m.store.Buckets(ctx)
	if err != nil {
		return err
	}

	for _, name := range names {
		if name == current {
			continue
		}
		if err := m.store.DeleteBucket(ctx, name); err != nil {
			return err
		}
		m.logger.Info().
			Str("bucket", name).
			Str("current", current).
			Msg("Deleted stale cache bucket")
	}

	return nil
}

// Match retrieves the cached entry for a GET of url from the current bucket.
func (m *Manager) Match(ctx context.Context, url string) (*Entry, error) {
	return m.store.Match(ctx, Key{Bucket: m.BucketName(), Method: http.MethodGet, URL: url})
}

// Put stores resp under url in the current bucket. The response body is
// restored for the caller.
func (m *Manager) Put(ctx context.Context, url string, resp *http.Response) error {
	return m.put(ctx, m.BucketName(), url, resp)
}

func (m *Manager) put(ctx context.Context, bucket, url string, resp *http.Response) error {
	entry, err := ResponseToEntry(resp)
	if err != nil {
		return faults.Cache("put", "convert response for "+url, err)
	}
	return m.store.Put(ctx, Key{Bucket: bucket, Method: http.MethodGet, URL: url}, entry)
}

// FallbackFetch passes through to the gateway's hash-fallback fetch using
// the manager's own current configuration for alternate-URL matching.
func (m *Manager) FallbackFetch(ctx context.Context, url string) (*http.Response, error) {
	return m.gw.FetchWithFallback(ctx, m.absolutize(url))
}

// Apply merges a configuration patch into the active configuration,
// overriding only non-empty or newer fields.
func (m *Manager) Apply(patch config.CacheConfig) {
	m.mu.Lock()
	m.cfg = m.cfg.Merge(patch)
	merged := m.cfg
	m.mu.Unlock()

	m.logger.Info().
		Str("bucket", merged.BucketName()).
		Int("urls", len(merged.URLs)).
		Msg("Applied configuration patch")
}

// Append adds urls to the configured set and returns the URLs that were
// actually new.
func (m *Manager) Append(urls []string) []string {
	m.mu.Lock()
	before := m.cfg.URLs
	m.cfg = m.cfg.Append(urls)
	after := m.cfg.URLs
	m.mu.Unlock()

	added := slices.Clone(after[len(before):])
	m.logger.Info().Strs("urls", added).Msg("Appended URLs to configuration")
	return added
}

// absolutize resolves a configured origin-relative URL against the origin.
func (m *Manager) absolutize(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return m.origin + url
}
