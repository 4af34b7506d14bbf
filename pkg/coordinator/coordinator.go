// Package coordinator wires the cache manager and strategy engine to the
// host's lifecycle: install (resolve configuration and precache), activate
// (sweep stale generations), fetch (intercept same-origin GETs and dispatch
// a serving strategy) and runtime control messages that patch the active
// configuration.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/plain-license/assetcache/pkg/cache"
	"github.com/plain-license/assetcache/pkg/config"
	"github.com/plain-license/assetcache/pkg/strategy"
)

// Message types accepted on the control channel.
const (
	// MessageCacheConfig merges a configuration patch into the active
	// configuration.
	MessageCacheConfig = "CACHE_CONFIG"

	// MessageCacheURLs appends URLs to the active set and eagerly primes
	// each one.
	MessageCacheURLs = "CACHE_URLS"
)

// Message is an inbound control message.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type urlsPayload struct {
	URLs []string `json:"urls"`
}

// Config holds the coordinator's collaborators.
type Config struct {
	// Manager owns the cache lifecycle and configuration (required).
	Manager *cache.Manager

	// Engine serves intercepted requests (required).
	Engine *strategy.Engine

	// Origin is the scheme://host whose requests are intercepted (required).
	Origin string

	// Transport forwards non-intercepted requests (optional).
	Transport http.RoundTripper

	// Logger is the component logger.
	Logger zerolog.Logger
}

// Coordinator reacts to lifecycle and request events for one origin.
type Coordinator struct {
	manager   *cache.Manager
	engine    *strategy.Engine
	origin    *url.URL
	transport http.RoundTripper
	logger    zerolog.Logger
	messages  chan Message
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	origin, err := url.Parse(cfg.Origin)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("origin must be a scheme://host URL: %q", cfg.Origin)
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}

	return &Coordinator{
		manager:   cfg.Manager,
		engine:    cfg.Engine,
		origin:    origin,
		transport: cfg.Transport,
		logger:    cfg.Logger,
		messages:  make(chan Message, 16),
	}, nil
}

// Install handles the install lifecycle event: configuration resolution and
// precache run strictly in sequence before the coordinator signals
// readiness. A precache failure fails the install.
func (c *Coordinator) Install(ctx context.Context) error {
	c.manager.Init(ctx)
	if err := c.manager.Precache(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Install failed during precache")
		return err
	}
	c.logger.Info().Str("bucket", c.manager.BucketName()).Msg("Install complete")
	return nil
}

// Activate handles the activate lifecycle event: stale cache generations are
// swept. In-flight fetches are not blocked on the sweep; a request racing a
// bucket deletion is a transient inconsistency resolved on its next fetch.
func (c *Coordinator) Activate(ctx context.Context) error {
	if err := c.manager.Cleanup(ctx); err != nil {
		c.logger.Error().Err(err).Msg("Activate failed during cleanup")
		return err
	}
	c.logger.Info().Str("bucket", c.manager.BucketName()).Msg("Activate complete")
	return nil
}

// ShouldIntercept reports whether a request is handled by the cache: only
// GET requests addressed to the coordinator's own origin (or with no host,
// i.e. origin-relative). Everything else passes through unmodified.
func (c *Coordinator) ShouldIntercept(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	return req.URL.Host == "" || req.URL.Host == c.origin.Host
}

// HandleRequest dispatches an inbound request event: intercepted requests go
// through the strategy engine; all others are forwarded to the origin
// untouched.
func (c *Coordinator) HandleRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if !c.ShouldIntercept(req) {
		return c.passthrough(req)
	}
	return c.engine.Serve(ctx, requestIdentity(req))
}

// Post enqueues a control message for the running message loop.
func (c *Coordinator) Post(msg Message) {
	c.messages <- msg
}

// Run consumes control messages until ctx is cancelled. Messages are
// applied one at a time so configuration patches never interleave.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.messages:
			c.handleMessage(ctx, msg)
		}
	}
}

func (c *Coordinator) handleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case MessageCacheConfig:
		var patch config.CacheConfig
		if err := json.Unmarshal(msg.Payload, &patch); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed CACHE_CONFIG payload")
			return
		}
		c.manager.Apply(patch)

	case MessageCacheURLs:
		var payload urlsPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed CACHE_URLS payload")
			return
		}
		added := c.manager.Append(payload.URLs)
		for _, u := range added {
			if err := c.engine.Prime(ctx, u); err != nil {
				c.logger.Warn().Err(err).Str("url", u).Msg("Failed to prime pushed URL")
			}
		}

	default:
		c.logger.Warn().Str("type", msg.Type).Msg("Unknown control message type")
	}
}

// passthrough forwards a non-intercepted request to the origin unmodified.
func (c *Coordinator) passthrough(req *http.Request) (*http.Response, error) {
	forward := req.Clone(req.Context())
	forward.RequestURI = ""
	if forward.URL.Host == "" {
		forward.URL.Scheme = c.origin.Scheme
		forward.URL.Host = c.origin.Host
	}
	return c.transport.RoundTrip(forward)
}

// requestIdentity canonicalizes the request to its origin-relative identity,
// matching how configured URLs are keyed.
func requestIdentity(req *http.Request) string {
	identity := req.URL.Path
	if identity == "" {
		identity = "/"
	}
	if req.URL.RawQuery != "" {
		identity += "?" + req.URL.RawQuery
	}
	return identity
}

// WriteResponse copies resp to w. Used by hosts embedding the coordinator
// in an HTTP server.
func WriteResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}
