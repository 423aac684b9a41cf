package images

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitegraph/internal/model"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordSleeps replaces the downloader's sleep with one that records delays.
func recordSleeps(d *Downloader) *[]time.Duration {
	var delays []time.Duration
	d.sleep = func(_ context.Context, delay time.Duration) error {
		delays = append(delays, delay)
		return nil
	}
	return &delays
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/logo", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/photo.JPEG", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	mux.HandleFunc("/anim", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("webp-bytes"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final/pic.gif", http.StatusFound)
	})
	mux.HandleFunc("/final/pic.gif", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "")
		_, _ = w.Write([]byte("gif-bytes"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/unknown", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write([]byte("???"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

// TestDownloadOne tests naming and content of saved files.
func TestDownloadOne(t *testing.T) {
	t.Parallel()

	server := newImageServer(t)

	tests := []struct {
		name    string
		path    string
		wantExt string
		content string
	}{
		{"content type", "/logo", "png", "png-bytes"},
		{"webp content type", "/anim", "webp", "webp-bytes"},
		{"url fallback", "/photo.JPEG", "jpeg", "jpeg-bytes"},
		{"final url after redirect", "/moved", "gif", "gif-bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := NewDownloader(server.Client(), WithLogger(quietLogger()))
			recordSleeps(d)
			dest := filepath.Join(t.TempDir(), "img")

			path, err := d.DownloadOne(context.Background(), server.URL+tt.path, dest)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if path != dest+"."+tt.wantExt {
				t.Errorf("expected path %s, got %s", dest+"."+tt.wantExt, path)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read file: %v", err)
			}
			if string(data) != tt.content {
				t.Errorf("expected %q, got %q", tt.content, data)
			}
		})
	}
}

// TestDownloadOneRetry tests the retry schedule.
func TestDownloadOneRetry(t *testing.T) {
	t.Parallel()

	t.Run("gives up after three attempts with growing delays", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		d := NewDownloader(server.Client(), WithLogger(quietLogger()))
		delays := recordSleeps(d)

		_, err := d.DownloadOne(context.Background(), server.URL+"/x.png", filepath.Join(t.TempDir(), "x"))
		if !errors.Is(err, ErrDownloadFailed) {
			t.Fatalf("expected ErrDownloadFailed, got %v", err)
		}
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Errorf("expected the last error to be wrapped, got %v", err)
		}
		if hits.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", hits.Load())
		}
		want := []time.Duration{DefaultBackoff, 2 * DefaultBackoff}
		if len(*delays) != len(want) {
			t.Fatalf("expected delays %v, got %v", want, *delays)
		}
		for i := range want {
			if (*delays)[i] != want[i] {
				t.Errorf("delay %d: expected %v, got %v", i, want[i], (*delays)[i])
			}
		}
	})

	t.Run("succeeds on a later attempt", func(t *testing.T) {
		t.Parallel()

		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 2 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "image/gif")
			_, _ = w.Write([]byte("gif"))
		}))
		defer server.Close()

		d := NewDownloader(server.Client(), WithLogger(quietLogger()))
		delays := recordSleeps(d)

		path, err := d.DownloadOne(context.Background(), server.URL, filepath.Join(t.TempDir(), "g"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Ext(path) != ".gif" {
			t.Errorf("expected .gif file, got %s", path)
		}
		if len(*delays) != 1 {
			t.Errorf("expected 1 delay, got %v", *delays)
		}
	})

	t.Run("unknown extension fails", func(t *testing.T) {
		t.Parallel()

		server := newImageServer(t)
		d := NewDownloader(server.Client(), WithLogger(quietLogger()), WithAttempts(1))

		_, err := d.DownloadOne(context.Background(), server.URL+"/unknown", filepath.Join(t.TempDir(), "u"))
		if !errors.Is(err, ErrUnknownExtension) {
			t.Errorf("expected ErrUnknownExtension, got %v", err)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		t.Parallel()

		server := newImageServer(t)
		d := NewDownloader(server.Client(), WithLogger(quietLogger()), WithBackoff(time.Hour))

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		_, err := d.DownloadOne(ctx, server.URL+"/missing", filepath.Join(t.TempDir(), "m"))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestDownloadAll tests the batch download.
func TestDownloadAll(t *testing.T) {
	t.Parallel()

	server := newImageServer(t)

	images := map[string]model.Image{
		"c": {Link: server.URL + "/missing"},
		"a": {Link: server.URL + "/logo", Alt: "logo"},
		"b": {Link: server.URL + "/anim"},
		"d": {Link: server.URL + "/logo"},
	}

	t.Run("saves up to the limit in id order", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "nested", "images")
		var progress []int
		d := NewDownloader(server.Client(),
			WithLogger(quietLogger()),
			WithProgress(func(done, total int, _ model.Download) {
				if total != 3 {
					t.Errorf("expected total 3, got %d", total)
				}
				progress = append(progress, done)
			}),
		)
		recordSleeps(d)

		downloads, err := d.DownloadAll(context.Background(), images, dir, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(downloads) != 3 {
			t.Fatalf("expected 3 downloads, got %d", len(downloads))
		}
		for i, id := range []string{"a", "b", "c"} {
			if downloads[i].ID != id {
				t.Errorf("download %d: expected id %s, got %s", i, id, downloads[i].ID)
			}
		}
		if downloads[0].Path != filepath.Join(dir, "a.png") || downloads[0].Image.Alt != "logo" {
			t.Errorf("unexpected first download: %+v", downloads[0])
		}
		if downloads[2].Succeeded() || downloads[2].Error == "" {
			t.Errorf("expected the missing image to fail, got %+v", downloads[2])
		}
		if _, err := os.Stat(filepath.Join(dir, "d.png")); !os.IsNotExist(err) {
			t.Error("expected images beyond the limit to be skipped")
		}
		if len(progress) != 3 || progress[2] != 3 {
			t.Errorf("unexpected progress calls: %v", progress)
		}
	})

	t.Run("zero limit downloads nothing", func(t *testing.T) {
		t.Parallel()

		d := NewDownloader(server.Client(), WithLogger(quietLogger()))
		downloads, err := d.DownloadAll(context.Background(), images, t.TempDir(), 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(downloads) != 0 {
			t.Errorf("expected no downloads, got %v", downloads)
		}
	})

	t.Run("directory that cannot be created is fatal", func(t *testing.T) {
		t.Parallel()

		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
			t.Fatalf("failed to create file: %v", err)
		}

		d := NewDownloader(server.Client(), WithLogger(quietLogger()))
		_, err := d.DownloadAll(context.Background(), images, filepath.Join(blocker, "images"), 10)
		if !errors.Is(err, ErrCreateDirectory) {
			t.Errorf("expected ErrCreateDirectory, got %v", err)
		}
	})

	t.Run("cancelled context skips remaining images", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		d := NewDownloader(server.Client(), WithLogger(quietLogger()))
		downloads, err := d.DownloadAll(ctx, images, t.TempDir(), 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(downloads) != 0 {
			t.Errorf("expected no downloads, got %v", downloads)
		}
	})
}
