// Package config provides configuration structures and utilities for sitegraph.
// It defines the crawl budget, worker and image download settings, HTTP client
// options, and the optional per-site YAML configuration file.
package config
