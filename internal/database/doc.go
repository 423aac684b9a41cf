// Package database stores the history of crawl runs in SQLite.
//
// Every saved run keeps its summary report, one row per page of its link
// graph and one row per attempted image download, including the SHA3-256
// digest and EXIF tags of saved files. This allows listing past runs of a
// domain, comparing the pages of two runs and finding the same image
// across runs by digest.
//
// The database is a single file (modernc.org/sqlite, no cgo) in WAL mode.
package database
