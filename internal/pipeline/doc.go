// Package pipeline runs the steps of a sitegraph run in sequence.
//
// A run is split into regular steps (crawl, download) and final steps
// (inspect, manifest, graph, report, history). Each step receives the
// shared model.CrawlReport and fills in its part of it.
//
// When the context is cancelled, for example by Ctrl-C, the remaining
// regular steps are skipped but the final steps still run with a context
// that is no longer cancelled. An interrupted crawl therefore still writes
// its partial graph and image manifest.
package pipeline
