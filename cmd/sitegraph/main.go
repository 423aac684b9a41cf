// Package main provides the entry point for the sitegraph CLI.
//
// sitegraph crawls one website with a pool of workers, writes the link
// graph of the site as JSON and downloads the images found on its pages.
//
// Usage:
//
//	sitegraph crawl -s https://example.com/
//	sitegraph history example.com
//
// See --help for all available options.
package main

// main is the entry point for sitegraph.
func main() {
	Execute()
}
