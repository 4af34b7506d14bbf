package config

import (
	"slices"
	"testing"
)

func TestCacheConfig_BucketName(t *testing.T) {
	cfg := CacheConfig{Name: "plain-license", Version: 1}
	if got := cfg.BucketName(); got != "plain-license-v1" {
		t.Errorf("BucketName() = %q, want %q", got, "plain-license-v1")
	}

	cfg.Version = 2
	if got := cfg.BucketName(); got != "plain-license-v2" {
		t.Errorf("BucketName() after version bump = %q, want %q", got, "plain-license-v2")
	}
}

func TestCacheConfig_Merge(t *testing.T) {
	base := CacheConfig{
		Name:    "plain-license",
		Version: 2,
		URLs:    []string{"/index.html"},
		LogoURL: "/images/logo.svg",
	}

	tests := []struct {
		name  string
		patch CacheConfig
		want  CacheConfig
	}{
		{
			name:  "empty patch changes nothing",
			patch: CacheConfig{},
			want:  base,
		},
		{
			name:  "older version is ignored",
			patch: CacheConfig{Version: 1},
			want:  base,
		},
		{
			name:  "newer version wins",
			patch: CacheConfig{Version: 3},
			want: CacheConfig{
				Name:    "plain-license",
				Version: 3,
				URLs:    []string{"/index.html"},
				LogoURL: "/images/logo.svg",
			},
		},
		{
			name:  "non-empty fields override",
			patch: CacheConfig{Name: "docs", URLs: []string{"/a.js", "/b.css"}, WorkerURL: "/sw.js"},
			want: CacheConfig{
				Name:      "docs",
				Version:   2,
				URLs:      []string{"/a.js", "/b.css"},
				WorkerURL: "/sw.js",
				LogoURL:   "/images/logo.svg",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.Merge(tt.patch)
			if got.Name != tt.want.Name || got.Version != tt.want.Version ||
				got.WorkerURL != tt.want.WorkerURL || got.LogoURL != tt.want.LogoURL {
				t.Errorf("Merge() = %+v, want %+v", got, tt.want)
			}
			if !slices.Equal(got.URLs, tt.want.URLs) {
				t.Errorf("Merge() URLs = %v, want %v", got.URLs, tt.want.URLs)
			}
		})
	}
}

func TestCacheConfig_Append(t *testing.T) {
	cfg := CacheConfig{URLs: []string{"/a.js"}}

	got := cfg.Append([]string{"/b.css", "/a.js", "", "/c.html"})

	want := []string{"/a.js", "/b.css", "/c.html"}
	if !slices.Equal(got.URLs, want) {
		t.Errorf("Append() URLs = %v, want %v", got.URLs, want)
	}

	// Original configuration is not mutated.
	if !slices.Equal(cfg.URLs, []string{"/a.js"}) {
		t.Errorf("Append() mutated receiver: %v", cfg.URLs)
	}
}
