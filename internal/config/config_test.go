package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns the documented defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default MaxLinks is 100", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxLinks != 100 {
			t.Errorf("expected MaxLinks to be 100, got %d", cfg.MaxLinks)
		}
	})

	t.Run("default MaxImages is 100", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxImages != 100 {
			t.Errorf("expected MaxImages to be 100, got %d", cfg.MaxImages)
		}
	})

	t.Run("default Workers is 4", func(t *testing.T) {
		t.Parallel()
		if cfg.Workers != 4 {
			t.Errorf("expected Workers to be 4, got %d", cfg.Workers)
		}
	})

	t.Run("default output paths", func(t *testing.T) {
		t.Parallel()
		if cfg.ImageDir != "images/" {
			t.Errorf("expected ImageDir to be 'images/', got %q", cfg.ImageDir)
		}
		if cfg.LinksJSON != "links.json" {
			t.Errorf("expected LinksJSON to be 'links.json', got %q", cfg.LinksJSON)
		}
		if cfg.ManifestPath() != filepath.Join("images", "database.json") {
			t.Errorf("unexpected manifest path %q", cfg.ManifestPath())
		}
	})

	t.Run("default delays", func(t *testing.T) {
		t.Parallel()
		if cfg.PolitenessDelay != 500*time.Millisecond {
			t.Errorf("expected PolitenessDelay to be 500ms, got %v", cfg.PolitenessDelay)
		}
		if cfg.IdleWait != 200*time.Millisecond {
			t.Errorf("expected IdleWait to be 200ms, got %v", cfg.IdleWait)
		}
	})

	t.Run("default LogStatus is false", func(t *testing.T) {
		t.Parallel()
		if cfg.LogStatus {
			t.Error("expected LogStatus to be false")
		}
	})

	t.Run("default DBDir is XDG data dir", func(t *testing.T) {
		t.Parallel()
		if cfg.DBDir != XDGDataDir() {
			t.Errorf("expected DBDir %q, got %q", XDGDataDir(), cfg.DBDir)
		}
	})
}

// TestConfigValidate tests each validation rule.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.StartURL = "https://example.com"
		return cfg
	}

	t.Run("valid config returns nil", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"empty start url", func(c *Config) { c.StartURL = "" }, ErrNoStartURL},
		{"ftp start url", func(c *Config) { c.StartURL = "ftp://example.com" }, ErrInvalidStartURL},
		{"relative start url", func(c *Config) { c.StartURL = "example.com/page" }, ErrInvalidStartURL},
		{"unparsable start url", func(c *Config) { c.StartURL = "http://[::1" }, ErrInvalidStartURL},
		{"zero max links", func(c *Config) { c.MaxLinks = 0 }, ErrInvalidMaxLinks},
		{"negative max images", func(c *Config) { c.MaxImages = -1 }, ErrInvalidMaxImages},
		{"zero workers", func(c *Config) { c.Workers = 0 }, ErrInvalidWorkers},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
		{"negative delay", func(c *Config) { c.PolitenessDelay = -time.Second }, ErrInvalidDelay},
		{"negative idle wait", func(c *Config) { c.IdleWait = -time.Second }, ErrInvalidDelay},
		{"negative body size", func(c *Config) { c.MaxBodySize = -1 }, ErrInvalidMaxBodySize},
		{"empty image dir", func(c *Config) { c.ImageDir = "" }, ErrNoImageDir},
		{"empty links json", func(c *Config) { c.LinksJSON = "" }, ErrNoLinksJSON},
		{"proxy and tor", func(c *Config) { c.ProxyAddress = "127.0.0.1:9050"; c.UseTor = true }, ErrConflictingProxy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("zero max images is valid", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.MaxImages = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}

// TestFileGetSiteConfig tests merging of defaults and site overrides.
func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	cf := &File{
		Defaults: SiteConfig{
			Cookie:         "default=1",
			Headers:        map[string]string{"X-Default": "yes"},
			Delay:          time.Second,
			IgnorePatterns: []string{"/private/*"},
		},
		Sites: map[string]SiteConfig{
			"example.com": {
				Cookie:    "session=abc",
				Headers:   map[string]string{"X-Site": "example"},
				UserAgent: "custom-agent",
				Timeout:   5 * time.Second,
			},
		},
	}

	t.Run("unknown host returns defaults", func(t *testing.T) {
		t.Parallel()
		got := cf.GetSiteConfig("other.com")
		if got.Cookie != "default=1" {
			t.Errorf("expected default cookie, got %q", got.Cookie)
		}
		if got.Delay != time.Second {
			t.Errorf("expected default delay, got %v", got.Delay)
		}
	})

	t.Run("site values override defaults", func(t *testing.T) {
		t.Parallel()
		got := cf.GetSiteConfig("example.com")
		if got.Cookie != "session=abc" {
			t.Errorf("expected site cookie, got %q", got.Cookie)
		}
		if got.UserAgent != "custom-agent" {
			t.Errorf("expected custom-agent, got %q", got.UserAgent)
		}
		if got.Timeout != 5*time.Second {
			t.Errorf("expected 5s timeout, got %v", got.Timeout)
		}
		if got.Delay != time.Second {
			t.Errorf("expected inherited delay, got %v", got.Delay)
		}
		if len(got.IgnorePatterns) != 1 {
			t.Errorf("expected inherited ignore patterns, got %v", got.IgnorePatterns)
		}
	})

	t.Run("headers are merged without mutating defaults", func(t *testing.T) {
		t.Parallel()
		got := cf.GetSiteConfig("example.com")
		if got.Headers["X-Default"] != "yes" || got.Headers["X-Site"] != "example" {
			t.Errorf("expected merged headers, got %v", got.Headers)
		}
		if _, ok := cf.Defaults.Headers["X-Site"]; ok {
			t.Error("expected defaults to stay untouched")
		}
	})
}

// TestLoadConfigFile tests reading the YAML configuration file.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.sitegraph")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".sitegraph")
		content := `defaults:
  delay: 750ms
  cookie: "default=abc"
sites:
  example.com:
    timeout: 10s
    userAgent: "bot/1.0"
    headers:
      Authorization: "Bearer token"
    ignorePatterns:
      - "/admin/*"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Defaults.Delay != 750*time.Millisecond {
			t.Errorf("expected default delay 750ms, got %v", cfg.Defaults.Delay)
		}
		site, ok := cfg.Sites["example.com"]
		if !ok {
			t.Fatal("expected example.com in sites")
		}
		if site.Timeout != 10*time.Second {
			t.Errorf("expected 10s timeout, got %v", site.Timeout)
		}
		if site.UserAgent != "bot/1.0" {
			t.Errorf("expected user agent bot/1.0, got %q", site.UserAgent)
		}
		if site.Headers["Authorization"] != "Bearer token" {
			t.Errorf("expected Authorization header")
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".sitegraph")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".sitegraph")
		if err := os.WriteFile(configPath, []byte("defaults:\n  cookie: a=b\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if !strings.HasSuffix(dir, AppName) {
				t.Errorf("expected %q to end with %q", dir, AppName)
			}
		})
	}
}
