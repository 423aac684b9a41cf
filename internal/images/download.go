package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/nao1215/sitegraph/internal/model"
)

const (
	// DefaultAttempts is how often a download is tried.
	DefaultAttempts = 3

	// DefaultBackoff is multiplied by the attempt number between attempts.
	DefaultBackoff = 500 * time.Millisecond
)

// Download errors.
var (
	// ErrCreateDirectory is returned when the image directory cannot be created.
	ErrCreateDirectory = errors.New("failed to create image directory")

	// ErrDownloadFailed is returned when every attempt failed.
	ErrDownloadFailed = errors.New("image download failed")

	// ErrUnexpectedStatus is returned for responses outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// ProgressFunc is called after each image of DownloadAll.
type ProgressFunc func(done, total int, d model.Download)

// Downloader saves images over HTTP.
type Downloader struct {
	client   *http.Client
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	progress ProgressFunc

	// sleep waits between attempts.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithAttempts sets how often a download is tried.
func WithAttempts(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.attempts = n
		}
	}
}

// WithBackoff sets the base delay between attempts.
func WithBackoff(b time.Duration) Option {
	return func(d *Downloader) {
		d.backoff = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithProgress sets a callback invoked after each download.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = fn
	}
}

// NewDownloader creates a Downloader using client.
func NewDownloader(client *http.Client, opts ...Option) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	d := &Downloader{
		client:   client,
		attempts: DefaultAttempts,
		backoff:  DefaultBackoff,
		logger:   slog.Default(),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DownloadAll saves at most maxCount images into dir, in id order.
// Each file is named after its id. A failed image is logged and recorded in
// its Download, it does not stop the others. Only a directory that cannot
// be created is an error. Remaining images are skipped once ctx ends.
func (d *Downloader) DownloadAll(ctx context.Context, images map[string]model.Image, dir string, maxCount int) ([]model.Download, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCreateDirectory, dir, err)
	}

	ids := make([]string, 0, len(images))
	for id := range images {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if len(ids) > maxCount {
		ids = ids[:max(maxCount, 0)]
	}

	downloads := make([]model.Download, 0, len(ids))
	for i, id := range ids {
		if ctx.Err() != nil {
			d.logger.Info("image download interrupted", "done", i, "total", len(ids))
			break
		}

		img := images[id]
		dl := model.Download{ID: id, Image: img}
		path, err := d.DownloadOne(ctx, img.Link, filepath.Join(dir, id))
		if err != nil {
			d.logger.Warn("failed to download image", "id", id, "url", img.Link, "error", err)
			dl.Error = err.Error()
		} else {
			d.logger.Debug("image saved", "id", id, "path", path)
			dl.Path = path
		}
		downloads = append(downloads, dl)

		if d.progress != nil {
			d.progress(i+1, len(ids), dl)
		}
	}
	return downloads, nil
}

// DownloadOne saves the image at imageURL to destination plus an extension
// and returns the path written. Failed attempts are retried after
// backoff*attempt. The last error is returned when all attempts fail.
func (d *Downloader) DownloadOne(ctx context.Context, imageURL, destination string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		path, err := d.fetch(ctx, imageURL, destination)
		if err == nil {
			return path, nil
		}
		lastErr = err
		d.logger.Debug("image download attempt failed", "url", imageURL, "attempt", attempt, "error", err)

		if attempt == d.attempts {
			break
		}
		if err := d.sleep(ctx, d.backoff*time.Duration(attempt)); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrDownloadFailed, d.attempts, lastErr)
}

// fetch performs one attempt.
func (d *Downloader) fetch(ctx context.Context, imageURL, destination string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	ext, err := ResolveExtension(resp.Header.Get("Content-Type"), resp.Request.URL.String())
	if err != nil {
		return "", err
	}

	path := destination + "." + ext
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	return path, nil
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
