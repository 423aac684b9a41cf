package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

const testPage = `<html><head><title>Test</title></head>
<body><a href="/next">next</a><img src="/a.png" alt="A"></body></html>`

// TestHTTPFetcherFetch tests fetching and extraction over HTTP.
func TestHTTPFetcherFetch(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/plain", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	})
	mux.HandleFunc("/gzip", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(testPage))
		_ = gz.Close()
	})
	mux.HandleFunc("/deflate", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "deflate")
		fl, _ := flate.NewWriter(w, flate.DefaultCompression)
		_, _ = fl.Write([]byte(testPage))
		_ = fl.Close()
	})
	mux.HandleFunc("/brotli", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "br")
		br := brotli.NewWriter(w)
		_, _ = br.Write([]byte(testPage))
		_ = br.Close()
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte("<html><head><title>Caf\xe9</title></head></html>"))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dir/landing", http.StatusFound)
	})
	mux.HandleFunc("/dir/landing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<a href="sibling">s</a>`))
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/weird", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Content-Encoding", "zstd")
		_, _ = w.Write([]byte("???"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	f := NewHTTPFetcher(&http.Client{Timeout: 5 * time.Second})

	for _, path := range []string{"/plain", "/gzip", "/deflate", "/brotli"} {
		t.Run("decodes "+path, func(t *testing.T) {
			t.Parallel()

			page, err := f.Fetch(context.Background(), server.URL+path, All)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(page.Links) != 1 || page.Links[0] != server.URL+"/next" {
				t.Errorf("unexpected links: %v", page.Links)
			}
			if len(page.Images) != 1 || page.Images[0].Alt != "A" {
				t.Errorf("unexpected images: %v", page.Images)
			}
			if len(page.Titles) != 1 || page.Titles[0] != "Test" {
				t.Errorf("unexpected titles: %v", page.Titles)
			}
			if page.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", page.StatusCode)
			}
		})
	}

	t.Run("converts charset to UTF-8", func(t *testing.T) {
		t.Parallel()

		page, err := f.Fetch(context.Background(), server.URL+"/latin1", All)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Titles) != 1 || page.Titles[0] != "Café" {
			t.Errorf("expected [Café], got %q", page.Titles)
		}
	})

	t.Run("resolves against final url after redirect", func(t *testing.T) {
		t.Parallel()

		page, err := f.Fetch(context.Background(), server.URL+"/redirect", All)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.FinalURL != server.URL+"/dir/landing" {
			t.Errorf("unexpected final url %q", page.FinalURL)
		}
		if len(page.Links) != 1 || page.Links[0] != server.URL+"/dir/sibling" {
			t.Errorf("unexpected links: %v", page.Links)
		}
	})

	t.Run("options select extracted content", func(t *testing.T) {
		t.Parallel()

		page, err := f.Fetch(context.Background(), server.URL+"/plain", Options{Links: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Links) != 1 {
			t.Errorf("expected links, got %v", page.Links)
		}
		if page.Images != nil || page.Titles != nil {
			t.Errorf("expected no images or titles, got %v %v", page.Images, page.Titles)
		}
	})

	t.Run("non-HTML content yields empty page", func(t *testing.T) {
		t.Parallel()

		page, err := f.Fetch(context.Background(), server.URL+"/image.png", All)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if page.ContentType != "image/png" || len(page.Links) != 0 {
			t.Errorf("unexpected page: %+v", page)
		}
	})

	t.Run("non-2xx status is an error", func(t *testing.T) {
		t.Parallel()

		page, err := f.Fetch(context.Background(), server.URL+"/missing", All)
		if !errors.Is(err, ErrUnexpectedStatus) {
			t.Fatalf("expected ErrUnexpectedStatus, got %v", err)
		}
		if page == nil || page.StatusCode != http.StatusNotFound {
			t.Errorf("expected page with status 404, got %+v", page)
		}
	})

	t.Run("unknown encoding is an error", func(t *testing.T) {
		t.Parallel()

		_, err := f.Fetch(context.Background(), server.URL+"/weird", All)
		if !errors.Is(err, ErrUnsupportedEncoding) {
			t.Errorf("expected ErrUnsupportedEncoding, got %v", err)
		}
	})

	t.Run("connection failure is an error", func(t *testing.T) {
		t.Parallel()

		_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/", All)
		if err == nil {
			t.Error("expected error")
		}
	})
}

// TestHTTPFetcherMaxBodySize tests that long pages are truncated.
func TestHTTPFetcherMaxBodySize(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	body.WriteString(`<html><body><a href="/early">e</a>`)
	body.WriteString(strings.Repeat("x", 4096))
	body.WriteString(`<a href="/late">l</a></body></html>`)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write(body.Bytes())
	}))
	defer server.Close()

	f := NewHTTPFetcher(nil, WithMaxBodySize(1024))
	page, err := f.Fetch(context.Background(), server.URL, All)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Links) != 1 || page.Links[0] != server.URL+"/early" {
		t.Errorf("expected only the early link, got %v", page.Links)
	}
}

// TestDecodeBody tests encoding selection.
func TestDecodeBody(t *testing.T) {
	t.Parallel()

	t.Run("identity passes through", func(t *testing.T) {
		t.Parallel()

		r, closeFn, err := decodeBody(strings.NewReader("x"), "identity")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closeFn() //nolint:errcheck // test
		if r == nil {
			t.Error("expected reader")
		}
	})

	t.Run("invalid gzip header fails", func(t *testing.T) {
		t.Parallel()

		if _, _, err := decodeBody(strings.NewReader("not gzip"), "gzip"); err == nil {
			t.Error("expected error")
		}
	})
}
