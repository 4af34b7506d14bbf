package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/faults"
)

// staticSource is a fixed URL set for fallback matching.
type staticSource struct {
	urls []string
}

func (s *staticSource) URLs() []string { return s.urls }

// originServer serves the given path->body table and counts requests per path.
type originServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newOriginServer(t *testing.T, assets map[string]string) *originServer {
	t.Helper()

	origin := &originServer{hits: make(map[string]int)}
	origin.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin.mu.Lock()
		origin.hits[r.URL.Path]++
		origin.mu.Unlock()

		body, ok := assets[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(origin.Close)

	return origin
}

func (o *originServer) hitCount(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

func TestGateway_Fetch(t *testing.T) {
	origin := newOriginServer(t, map[string]string{"/index.html": "<html>"})
	gw := New(origin.Client(), &staticSource{}, zerolog.Nop())

	resp, err := gw.Fetch(context.Background(), origin.URL+"/index.html")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html>" {
		t.Errorf("body = %q, want %q", body, "<html>")
	}
}

func TestGateway_Fetch_NonSuccessStatus(t *testing.T) {
	origin := newOriginServer(t, nil)
	gw := New(origin.Client(), &staticSource{}, zerolog.Nop())

	_, err := gw.Fetch(context.Background(), origin.URL+"/missing.js")
	if !faults.IsNetwork(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if got := faults.StatusOf(err); got != http.StatusNotFound {
		t.Errorf("StatusOf = %d, want 404", got)
	}
}

func TestGateway_Fetch_TransportFailure(t *testing.T) {
	origin := newOriginServer(t, nil)
	origin.Close()
	gw := New(nil, &staticSource{}, zerolog.Nop())

	_, err := gw.Fetch(context.Background(), origin.URL+"/index.html")
	if !faults.IsNetwork(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if got := faults.StatusOf(err); got != 0 {
		t.Errorf("StatusOf = %d, want 0 for transport failure", got)
	}
}

func TestGateway_FetchWithFallback_HashPatternMatch(t *testing.T) {
	// A stale hashed name misses directly; the configured URL set carries
	// the currently deployed hash and the fallback must recover it.
	origin := newOriginServer(t, map[string]string{
		"/assets/app.12345678.js": "current bundle",
	})
	source := &staticSource{urls: []string{"/assets/app.12345678.js"}}
	gw := New(origin.Client(), source, zerolog.Nop())

	resp, err := gw.FetchWithFallback(context.Background(), origin.URL+"/assets/app.deadbeef.js")
	if err != nil {
		t.Fatalf("FetchWithFallback failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "current bundle" {
		t.Errorf("body = %q, want the currently deployed asset", body)
	}
	if origin.hitCount("/assets/app.12345678.js") != 1 {
		t.Errorf("matched URL fetched %d times, want 1", origin.hitCount("/assets/app.12345678.js"))
	}
}

func TestGateway_FetchWithFallback_HashStripped(t *testing.T) {
	// No configured match: the fallback retries the hash-stripped path.
	origin := newOriginServer(t, map[string]string{
		"/assets/app.js": "unhashed bundle",
	})
	gw := New(origin.Client(), &staticSource{}, zerolog.Nop())

	resp, err := gw.FetchWithFallback(context.Background(), origin.URL+"/assets/app.deadbeef.js")
	if err != nil {
		t.Fatalf("FetchWithFallback failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "unhashed bundle" {
		t.Errorf("body = %q, want the hash-stripped asset", body)
	}
}

func TestGateway_FetchWithFallback_Exhausted(t *testing.T) {
	// No hash in the path and no pattern match: the single retry targets
	// the (unchanged) stripped path and final failure carries status 500.
	origin := newOriginServer(t, nil)
	gw := New(origin.Client(), &staticSource{}, zerolog.Nop())

	_, err := gw.FetchWithFallback(context.Background(), origin.URL+"/missing.js")
	if !faults.IsNetwork(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
	if got := faults.StatusOf(err); got != http.StatusInternalServerError {
		t.Errorf("StatusOf = %d, want 500 after fallback exhaustion", got)
	}
	if origin.hitCount("/missing.js") != 2 {
		t.Errorf("origin hit %d times, want exactly 2 (direct + one fallback)", origin.hitCount("/missing.js"))
	}
}

func TestGateway_FetchWithFallback_DirectHitSkipsFallback(t *testing.T) {
	origin := newOriginServer(t, map[string]string{"/index.html": "<html>"})
	gw := New(origin.Client(), &staticSource{}, zerolog.Nop())

	resp, err := gw.FetchWithFallback(context.Background(), origin.URL+"/index.html")
	if err != nil {
		t.Fatalf("FetchWithFallback failed: %v", err)
	}
	resp.Body.Close()

	if origin.hitCount("/index.html") != 1 {
		t.Errorf("origin hit %d times, want 1", origin.hitCount("/index.html"))
	}
}
