// Package config holds the cache configuration and resolves it from the
// origin's remote manifest.
package config

import (
	"fmt"
	"slices"
)

// CacheConfig identifies one logical cache bucket and the URL set it retains.
type CacheConfig struct {
	// Name is the cache bucket identifier.
	Name string `json:"cacheName"`

	// Version is monotonic; bumping it invalidates all entries stored
	// under previous bucket names.
	Version int `json:"version"`

	// URLs is the ordered set of canonical resource URLs to retain.
	URLs []string `json:"urls"`

	// WorkerURL is the coordinator script's own URL, when published.
	WorkerURL string `json:"workerUrl,omitempty"`

	// LogoURL is the origin's logo asset, cached alongside the URL set.
	LogoURL string `json:"logoUrl,omitempty"`
}

// Default returns the configuration used before the manifest has been
// resolved.
func Default() CacheConfig {
	return CacheConfig{
		Name:    "plain-license",
		Version: 1,
	}
}

// BucketName derives the versioned bucket identifier. Changing Name or
// Version yields a new bucket and logically orphans all previous ones.
func (c CacheConfig) BucketName() string {
	return fmt.Sprintf("%s-v%d", c.Name, c.Version)
}

// Configured reports whether the URL set has been populated.
func (c CacheConfig) Configured() bool {
	return len(c.URLs) > 0
}

// Merge applies patch over c, overriding only non-empty or newer fields:
// Name and the auxiliary URLs when non-empty, Version when newer, URLs when
// non-empty. Returns the merged configuration.
func (c CacheConfig) Merge(patch CacheConfig) CacheConfig {
	merged := c
	if patch.Name != "" {
		merged.Name = patch.Name
	}
	if patch.Version > c.Version {
		merged.Version = patch.Version
	}
	if len(patch.URLs) > 0 {
		merged.URLs = slices.Clone(patch.URLs)
	}
	if patch.WorkerURL != "" {
		merged.WorkerURL = patch.WorkerURL
	}
	if patch.LogoURL != "" {
		merged.LogoURL = patch.LogoURL
	}
	return merged
}

// Append adds urls to the configured set, skipping duplicates, and returns
// the updated configuration.
func (c CacheConfig) Append(urls []string) CacheConfig {
	updated := c
	updated.URLs = slices.Clone(c.URLs)
	for _, u := range urls {
		if u == "" || slices.Contains(updated.URLs, u) {
			continue
		}
		updated.URLs = append(updated.URLs, u)
	}
	return updated
}
