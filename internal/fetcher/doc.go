// Package fetcher downloads a single page and extracts what the crawler
// needs from it: outgoing links, image references and title texts.
//
// Fetcher is the interface the crawler depends on. HTTPFetcher is the
// production implementation: one GET per call with the client's timeout,
// no retries, transparent gzip, deflate and brotli decoding, charset
// conversion to UTF-8, and a cap on the number of body bytes parsed.
package fetcher
