package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is sent with every page request. Setting it by hand turns
// off the transport's own gzip handling, so decodeBody must handle all of
// the listed encodings.
const acceptEncoding = "gzip, deflate, br"

// decodeBody wraps body according to the Content-Encoding header.
// The returned close function releases the decoder, not body.
func decodeBody(body io.Reader, contentEncoding string) (io.Reader, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return body, noop, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, noop, fmt.Errorf("gzip decode: %w", err)
		}
		return gz, gz.Close, nil
	case "deflate":
		fl := flate.NewReader(body)
		return fl, fl.Close, nil
	case "br":
		return brotli.NewReader(body), noop, nil
	default:
		return nil, noop, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, contentEncoding)
	}
}
