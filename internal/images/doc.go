// Package images turns the images found during a crawl into files on disk.
//
// Flatten gives every (page, image) pair of a link graph its own id, so an
// image used on several pages is downloaded once per page. DownloadAll
// saves a bounded number of them sequentially as <dir>/<id>.<ext>, where
// the extension comes from the response Content-Type or, failing that, from
// the URL. Inspect computes a SHA3-256 digest and extracts selected EXIF
// tags from a saved file.
package images
