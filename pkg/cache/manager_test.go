package cache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/config"
	"github.com/plain-license/assetcache/pkg/faults"
	"github.com/plain-license/assetcache/pkg/precache"
)

// newTestOrigin serves a manifest plus the asset table.
func newTestOrigin(t *testing.T, manifest string, assets map[string]string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == config.DefaultManifestPath {
			if manifest == "" {
				http.NotFound(w, r)
				return
			}
			w.Write([]byte(manifest))
			return
		}
		body, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server
}

func newTestManager(t *testing.T, origin *httptest.Server, initial config.CacheConfig) *Manager {
	t.Helper()

	store := NewStore(setupTestRedis(t))
	resolver := config.NewResolver(origin.Client(), origin.URL, "", zerolog.Nop())
	m, err := NewManager(ManagerConfig{
		Store:      store,
		Resolver:   resolver,
		Origin:     origin.URL,
		HTTPClient: origin.Client(),
		Initial:    initial,
		Precache:   precache.Config{MaxConcurrency: 2, MaxAttempts: 1},
		Logger:     zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(ManagerConfig{}); err == nil {
		t.Error("NewManager should reject a missing store")
	}
}

func TestManager_Init_ResolvesManifest(t *testing.T) {
	manifest := `{"cacheName": "plain-license", "version": 2, "index": "/index.html"}`
	origin := newTestOrigin(t, manifest, nil)
	m := newTestManager(t, origin, config.Default())

	if m.Phase() != PhaseUninitialized {
		t.Fatalf("phase = %v before Init", m.Phase())
	}

	m.Init(context.Background())

	if m.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready", m.Phase())
	}
	if got := m.BucketName(); got != "plain-license-v2" {
		t.Errorf("bucket = %q, want plain-license-v2", got)
	}
	if !slices.Equal(m.URLs(), []string{"/index.html"}) {
		t.Errorf("URLs = %v", m.URLs())
	}
}

func TestManager_Init_DegradesOnManifestFailure(t *testing.T) {
	origin := newTestOrigin(t, "", nil) // manifest 404s
	initial := config.Default()
	m := newTestManager(t, origin, initial)

	m.Init(context.Background())

	// Init never fails; the manager proceeds with last-known configuration.
	if m.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready despite manifest failure", m.Phase())
	}
	if got := m.BucketName(); got != initial.BucketName() {
		t.Errorf("bucket = %q, want prior %q", got, initial.BucketName())
	}
}

func TestManager_Precache_PopulatesBucket(t *testing.T) {
	manifest := `{"cacheName": "plain-license", "version": 1, "app": "/assets/app.12345678.js", "index": "/index.html"}`
	origin := newTestOrigin(t, manifest, map[string]string{
		"/assets/app.12345678.js": "bundle",
		"/index.html":             "<html>",
	})
	m := newTestManager(t, origin, config.Default())
	ctx := context.Background()

	m.Init(ctx)
	if err := m.Precache(ctx); err != nil {
		t.Fatalf("Precache failed: %v", err)
	}

	if m.Phase() != PhasePrecached {
		t.Errorf("phase = %v, want precached", m.Phase())
	}

	entry, err := m.Match(ctx, "/index.html")
	if err != nil {
		t.Fatalf("Match after precache failed: %v", err)
	}
	if string(entry.Data) != "<html>" {
		t.Errorf("cached data = %q", entry.Data)
	}
}

func TestManager_Precache_FailsOnMissingAsset(t *testing.T) {
	manifest := `{"cacheName": "plain-license", "version": 1, "gone": "/missing.js", "index": "/index.html"}`
	origin := newTestOrigin(t, manifest, map[string]string{"/index.html": "<html>"})
	m := newTestManager(t, origin, config.Default())
	ctx := context.Background()

	m.Init(ctx)
	err := m.Precache(ctx)
	if err == nil {
		t.Fatal("Precache should fail when a configured URL cannot be fetched")
	}
	if !faults.IsCache(err) {
		t.Errorf("expected cache failure, got %v", err)
	}

	// Partial population is acceptable: the healthy URL is stored.
	if _, err := m.Match(ctx, "/index.html"); err != nil {
		t.Errorf("healthy URL should still be cached: %v", err)
	}
}

func TestManager_Cleanup_DeletesStaleBucketsOnly(t *testing.T) {
	origin := newTestOrigin(t, "", nil)
	m := newTestManager(t, origin, config.CacheConfig{
		Name:    "plain-license",
		Version: 1,
		URLs:    []string{"/index.html"},
	})
	ctx := context.Background()

	// Two generations exist; the configured bucket is plain-license-v1.
	for _, bucket := range []string{"plain-license-v0", "plain-license-v1"} {
		if err := m.store.Open(ctx, bucket); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		key := Key{Bucket: bucket, Method: "GET", URL: "/index.html"}
		if err := m.store.Put(ctx, key, testEntry(bucket)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	names, err := m.store.Buckets(ctx)
	if err != nil {
		t.Fatalf("Buckets failed: %v", err)
	}
	if !slices.Equal(names, []string{"plain-license-v1"}) {
		t.Errorf("surviving buckets = %v, want [plain-license-v1]", names)
	}
	if _, err := m.Match(ctx, "/index.html"); err != nil {
		t.Errorf("current bucket entry should survive cleanup: %v", err)
	}
}

func TestManager_FallbackFetch_UsesConfiguredURLs(t *testing.T) {
	origin := newTestOrigin(t, "", map[string]string{
		"/assets/app.12345678.js": "current bundle",
	})
	m := newTestManager(t, origin, config.CacheConfig{
		Name:    "plain-license",
		Version: 1,
		URLs:    []string{"/assets/app.12345678.js"},
	})

	resp, err := m.FallbackFetch(context.Background(), "/assets/app.deadbeef.js")
	if err != nil {
		t.Fatalf("FallbackFetch failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "current bundle" {
		t.Errorf("body = %q, want the currently deployed asset", body)
	}
}

func TestManager_ApplyAndAppend(t *testing.T) {
	origin := newTestOrigin(t, "", nil)
	m := newTestManager(t, origin, config.Default())

	m.Apply(config.CacheConfig{Version: 3})
	if got := m.BucketName(); got != "plain-license-v3" {
		t.Errorf("bucket after Apply = %q", got)
	}

	added := m.Append([]string{"/a.js", "/b.css"})
	if !slices.Equal(added, []string{"/a.js", "/b.css"}) {
		t.Errorf("added = %v", added)
	}

	// Appending a duplicate reports only the new URL.
	added = m.Append([]string{"/a.js", "/c.html"})
	if !slices.Equal(added, []string{"/c.html"}) {
		t.Errorf("added = %v, want [/c.html]", added)
	}
}
