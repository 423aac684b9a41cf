package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"golang.org/x/net/html/charset"

	"github.com/nao1215/sitegraph/internal/model"
)

// DefaultMaxBodySize is the number of body bytes parsed when no limit is set.
const DefaultMaxBodySize = 5 * 1024 * 1024

// Fetch errors.
var (
	// ErrUnexpectedStatus is returned for responses outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrUnsupportedEncoding is returned for an unknown Content-Encoding.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")
)

// Options selects what is extracted from a page.
type Options struct {
	Links  bool
	Titles bool
	Images bool
}

// All extracts links, titles and images.
var All = Options{Links: true, Titles: true, Images: true}

// Fetcher fetches one page and extracts its content.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, opts Options) (*model.Page, error)
}

// HTTPFetcher fetches pages over HTTP.
type HTTPFetcher struct {
	client      *http.Client
	maxBodySize int64
	logger      *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithMaxBodySize limits how many body bytes are parsed.
// Longer pages are truncated, not rejected.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		f.logger = logger
	}
}

// NewHTTPFetcher creates a fetcher using client. The client's timeout is
// the per-page timeout.
func NewHTTPFetcher(client *http.Client, opts ...Option) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:      client,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs a single GET of pageURL and extracts the content selected
// by opts. Non-HTML responses yield a page without content.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string, opts Options) (*model.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	page := &model.Page{
		URL:        pageURL,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}
	rawContentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(rawContentType); err == nil {
		page.ContentType = mediaType
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return page, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	// A missing Content-Type is parsed as HTML.
	if page.ContentType != "" && !page.IsHTML() {
		f.logger.Debug("skipping non-HTML page", "url", pageURL, "content_type", page.ContentType)
		return page, nil
	}

	body, closeDecoder, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return page, err
	}
	defer closeDecoder() //nolint:errcheck // decoder close errors carry no information after reading

	utf8Body, err := charset.NewReader(io.LimitReader(body, f.maxBodySize), rawContentType)
	if err != nil {
		return page, fmt.Errorf("failed to decode charset: %w", err)
	}

	parser, err := NewParser(page.FinalURL)
	if err != nil {
		return page, err
	}
	result, err := parser.Parse(utf8Body)
	if err != nil {
		return page, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if opts.Links {
		page.Links = result.Links
	}
	if opts.Images {
		page.Images = result.Images
	}
	if opts.Titles {
		page.Titles = result.Titles
	}

	f.logger.Debug("fetched page",
		"url", pageURL,
		"status", page.StatusCode,
		"links", len(page.Links),
		"images", len(page.Images),
	)
	return page, nil
}
