// Package model defines the core data structures used throughout sitegraph.
//
// This package contains the following main types:
//   - Image: An image reference found on a page
//   - Link: One crawled page and its relations to other pages
//   - LinkGraph: The deduplicated set of crawled pages
//   - Page: The content extracted from a single fetched page
//   - CrawlReport: The result of a whole run, filled in step by step
//
// The models live in their own package because the crawler, image pipeline,
// report writers and database all share them.
//
// The models are serializable to JSON for the graph file, the image manifest
// and database storage.
package model
