// Package report writes the results of a crawl.
//
// Two files are always produced: the link graph as JSON and the image
// manifest, a JSON object mapping every image id to its link and alt text.
// A run summary can additionally be written as plain text for the
// terminal, as Markdown or as JSON. The summary writers implement Writer
// and can be combined with MultiWriter.
package report
