package crawler

import (
	"net/url"
	"path"
	"strings"
)

// DefaultBaseDomain is used when the seed URL has no host.
const DefaultBaseDomain = "localhost"

// BaseDomain returns the host of seed without port, or DefaultBaseDomain.
func BaseDomain(seed string) string {
	u, err := url.Parse(seed)
	if err != nil || u.Hostname() == "" {
		return DefaultBaseDomain
	}
	return strings.ToLower(u.Hostname())
}

// Normalize validates raw and returns its canonical form.
// Only absolute http and https URLs with a host are accepted. The fragment
// is dropped, scheme and host are lower-cased, and an empty path becomes "/".
func Normalize(raw string) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if u.Host == "" {
		return nil, false
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u, true
}

// isSameDomain reports whether host is domain or one of its subdomains.
func isSameDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Scope decides which URLs belong to the crawl.
type Scope struct {
	baseDomain     string
	ignorePatterns []string
	followPatterns []string
}

// NewScope creates a Scope for baseDomain.
func NewScope(baseDomain string, ignorePatterns, followPatterns []string) *Scope {
	return &Scope{
		baseDomain:     strings.ToLower(baseDomain),
		ignorePatterns: ignorePatterns,
		followPatterns: followPatterns,
	}
}

// BaseDomain returns the domain the scope admits.
func (s *Scope) BaseDomain() string {
	return s.baseDomain
}

// Allows reports whether the normalized URL u may be crawled.
func (s *Scope) Allows(u *url.URL) bool {
	if !isSameDomain(u.Hostname(), s.baseDomain) {
		return false
	}
	return s.matchesPatterns(u.Path)
}

// matchesPatterns applies the ignore patterns, then the follow patterns.
// An empty follow list allows every path that was not ignored.
func (s *Scope) matchesPatterns(p string) bool {
	if p == "" {
		p = "/"
	}

	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}

	if len(s.followPatterns) == 0 {
		return true
	}
	for _, pattern := range s.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern checks if a URL path matches a glob pattern.
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.pdf" matches any path ending in ".pdf"
//   - other patterns use path.Match, so * stays within one segment
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*."); ok && !strings.Contains(ext, "/") {
		if strings.HasSuffix(p, "."+ext) {
			return true
		}
	}

	matched, err := path.Match(pattern, p)
	return err == nil && matched
}
