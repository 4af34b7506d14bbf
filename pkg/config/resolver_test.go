package config

import (
	"context"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/rs/zerolog"
)

func newManifestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultManifestPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestResolver_Resolve(t *testing.T) {
	manifest := `{
		"cacheName": "plain-license",
		"version": 2,
		"app": "/assets/app.12345678.js",
		"style": "/assets/style.abcdef01.css",
		"index": "/index.html"
	}`
	server := newManifestServer(t, http.StatusOK, manifest)
	resolver := NewResolver(server.Client(), server.URL, "", zerolog.Nop())

	got := resolver.Resolve(context.Background(), Default())

	if got.Name != "plain-license" || got.Version != 2 {
		t.Errorf("resolved identity = %s v%d, want plain-license v2", got.Name, got.Version)
	}

	// URL fields are collected in sorted field order.
	want := []string{"/assets/app.12345678.js", "/index.html", "/assets/style.abcdef01.css"}
	if !slices.Equal(got.URLs, want) {
		t.Errorf("resolved URLs = %v, want %v", got.URLs, want)
	}
}

func TestResolver_Resolve_AlreadyConfigured(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	resolver := NewResolver(server.Client(), server.URL, "", zerolog.Nop())
	current := CacheConfig{Name: "plain-license", Version: 1, URLs: []string{"/index.html"}}

	got := resolver.Resolve(context.Background(), current)
	if !slices.Equal(got.URLs, current.URLs) || got.Name != current.Name {
		t.Errorf("Resolve() changed an already configured config: %+v", got)
	}
	if requests != 0 {
		t.Errorf("Resolve() fetched the manifest despite non-empty URLs (%d requests)", requests)
	}

	// Idempotent: resolving again returns the same configuration.
	again := resolver.Resolve(context.Background(), got)
	if !slices.Equal(again.URLs, got.URLs) || again.Version != got.Version {
		t.Errorf("Resolve() not idempotent: %+v then %+v", got, again)
	}
}

func TestResolver_Resolve_NonSuccessStatus(t *testing.T) {
	server := newManifestServer(t, http.StatusServiceUnavailable, "upstream down")
	resolver := NewResolver(server.Client(), server.URL, "", zerolog.Nop())
	current := Default()

	got := resolver.Resolve(context.Background(), current)

	if got.Name != current.Name || got.Version != current.Version || len(got.URLs) != 0 {
		t.Errorf("Resolve() should degrade to prior config on non-success, got %+v", got)
	}
}

func TestResolver_Resolve_MalformedManifest(t *testing.T) {
	server := newManifestServer(t, http.StatusOK, `{"cacheName": `)
	resolver := NewResolver(server.Client(), server.URL, "", zerolog.Nop())
	current := Default()

	got := resolver.Resolve(context.Background(), current)
	if got.Name != current.Name || len(got.URLs) != 0 {
		t.Errorf("Resolve() should degrade to prior config on decode failure, got %+v", got)
	}
}

func TestResolver_Resolve_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // Connection refused from here on.

	resolver := NewResolver(nil, server.URL, "", zerolog.Nop())
	current := Default()

	got := resolver.Resolve(context.Background(), current)
	if got.Name != current.Name || len(got.URLs) != 0 {
		t.Errorf("Resolve() should degrade to prior config on transport failure, got %+v", got)
	}
}

func TestResolver_Resolve_SkipsNonStringFields(t *testing.T) {
	manifest := `{"cacheName": "docs", "version": 1, "app": "/app.js", "flags": {"beta": true}}`
	server := newManifestServer(t, http.StatusOK, manifest)
	resolver := NewResolver(server.Client(), server.URL, "", zerolog.Nop())

	got := resolver.Resolve(context.Background(), Default())
	if !slices.Equal(got.URLs, []string{"/app.js"}) {
		t.Errorf("resolved URLs = %v, want [/app.js]", got.URLs)
	}
}
