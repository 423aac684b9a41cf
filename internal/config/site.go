package config

import "time"

// SiteConfig holds crawl settings for one host.
type SiteConfig struct {
	// Cookie is an HTTP cookie sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers sent with every request to the site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Delay overrides the politeness delay, e.g. "1s".
	Delay time.Duration `yaml:"delay,omitempty"`

	// Timeout overrides the per-request timeout, e.g. "10s".
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// IgnorePatterns are URL path globs to skip during crawling.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path globs to follow during crawling.
	// If specified, only matching URLs are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .sitegraph configuration file.
type File struct {
	// Sites maps hosts (e.g. "example.com") to their configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every site unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Delay != 0 {
		result.Delay = siteConfig.Delay
	}
	if siteConfig.Timeout != 0 {
		result.Timeout = siteConfig.Timeout
	}
	if len(siteConfig.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(siteConfig.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range siteConfig.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}

	return result
}
