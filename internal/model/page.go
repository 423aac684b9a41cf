package model

// Page is the content extracted from one fetched page.
// The crawler only reads Links, Images and Titles; the other fields are
// kept for logging and the run history.
type Page struct {
	// URL is the URL that was requested.
	URL string `json:"url"`

	// FinalURL is the URL after redirects.
	FinalURL string `json:"final_url,omitempty"`

	// StatusCode is the HTTP response status code.
	StatusCode int `json:"status_code"`

	// ContentType is the media type of the response without parameters.
	ContentType string `json:"content_type,omitempty"`

	// Links contains the absolute URLs of all <a href> targets.
	Links []string `json:"links,omitempty"`

	// Images contains all <img> references with their alt text.
	Images []Image `json:"images,omitempty"`

	// Titles contains the <title> and <h1> texts of the page.
	Titles []string `json:"titles,omitempty"`
}

// IsHTML returns true if the page content type indicates HTML.
func (p *Page) IsHTML() bool {
	return p.ContentType == "text/html" || p.ContentType == "application/xhtml+xml"
}
