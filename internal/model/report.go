package model

import (
	"time"
)

// CrawlReport is the result of one sitegraph run.
// It is created before the crawl starts and filled in by each pipeline step.
type CrawlReport struct {
	// StartURL is the seed URL of the crawl.
	StartURL string `json:"start_url"`

	// BaseDomain is the host every crawled page must belong to.
	BaseDomain string `json:"base_domain"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl and the downloads finished.
	FinishedAt time.Time `json:"finished_at"`

	// MaxLinks is the page budget of the crawl.
	MaxLinks int `json:"max_links"`

	// MaxImages is the maximum number of images to download.
	MaxImages int `json:"max_images"`

	// Workers is the number of crawl workers.
	Workers int `json:"workers"`

	// Graph is the link graph built by the crawl.
	Graph *LinkGraph `json:"-"`

	// Admitted is the number of pages the workers started to fetch.
	// It can exceed MaxLinks by up to Workers-1.
	Admitted int64 `json:"admitted"`

	// FetchErrors is the number of pages that could not be fetched.
	FetchErrors int64 `json:"fetch_errors"`

	// Images is the flattened image set keyed by image id.
	Images map[string]Image `json:"-"`

	// Downloads records the outcome of every attempted image download.
	Downloads []Download `json:"downloads,omitempty"`

	// Interrupted is true if the crawl was stopped by a signal.
	Interrupted bool `json:"interrupted"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error is the message of the last failed step, if any.
	Error string `json:"error,omitempty"`
}

// Download is the outcome of one image download.
type Download struct {
	// ID is the image id, also used as the file name stem.
	ID string `json:"id"`

	// Image is the downloaded image reference.
	Image Image `json:"image"`

	// Path is where the file was saved. Empty if the download failed.
	Path string `json:"path,omitempty"`

	// Error is the last error if the download failed.
	Error string `json:"error,omitempty"`

	// Size is the file size in bytes.
	Size int64 `json:"size,omitempty"`

	// SHA3 is the hex SHA3-256 digest of the file.
	SHA3 string `json:"sha3,omitempty"`

	// Exif holds selected EXIF tags found in the file.
	Exif []ExifTag `json:"exif,omitempty"`
}

// Succeeded reports whether the file was saved.
func (d Download) Succeeded() bool {
	return d.Path != ""
}

// ExifTag is one EXIF tag extracted from an image.
type ExifTag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewCrawlReport creates a report for a crawl starting at startURL.
func NewCrawlReport(startURL string) *CrawlReport {
	return &CrawlReport{
		StartURL:  startURL,
		StartedAt: time.Now(),
		Graph:     NewLinkGraph(),
		Images:    make(map[string]Image),
	}
}

// MarkStep records that the named step ran.
func (r *CrawlReport) MarkStep(name string) {
	r.PerformedSteps = append(r.PerformedSteps, name)
}

// SavedCount returns the number of images that were saved.
func (r *CrawlReport) SavedCount() int {
	n := 0
	for _, d := range r.Downloads {
		if d.Succeeded() {
			n++
		}
	}
	return n
}

// ExifCount returns the number of saved images carrying EXIF tags.
func (r *CrawlReport) ExifCount() int {
	n := 0
	for _, d := range r.Downloads {
		if len(d.Exif) > 0 {
			n++
		}
	}
	return n
}
