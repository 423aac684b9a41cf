package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects is the number of redirects followed before the last response
// is returned as is.
const maxRedirects = 10

// Options configures the HTTP client.
type Options struct {
	// ProxyAddress routes traffic through a SOCKS5 proxy in "host:port"
	// format. Empty means direct connections.
	ProxyAddress string

	// Timeout is the per-request timeout, including reading the body.
	Timeout time.Duration

	// UserAgent is set on every request that does not carry one.
	UserAgent string

	// Cookie is a raw cookie string appended to every request.
	Cookie string

	// Headers are set on every request.
	Headers map[string]string
}

// NewClient creates the HTTP client used for all sitegraph traffic.
// It does not contact the proxy; use CheckSOCKS5 for that.
func NewClient(opts Options) (*http.Client, error) {
	base := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // DefaultTransport is always *http.Transport
	base.MaxIdleConnsPerHost = 4
	base.IdleConnTimeout = 30 * time.Second

	if opts.ProxyAddress != "" {
		if !isValidProxyAddress(opts.ProxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		dialer, err := proxy.SOCKS5("tcp", opts.ProxyAddress, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		base.Proxy = nil
		base.DialContext = dialContext(dialer)
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	var rt http.RoundTripper = base
	if opts.UserAgent != "" || opts.Cookie != "" || len(opts.Headers) > 0 {
		rt = &headerInjectingTransport{
			base:      base,
			userAgent: opts.UserAgent,
			cookie:    opts.Cookie,
			headers:   opts.Headers,
		}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   opts.Timeout,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// dialContext adapts a proxy.Dialer to http.Transport.DialContext.
// The SOCKS5 dialer from x/net supports contexts; other dialers are wrapped
// so cancellation at least unblocks the caller.
func dialContext(dialer proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := dialer.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()

		select {
		case result := <-resultCh:
			return result.conn, result.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// isValidProxyAddress checks that address is "host:port" with a non-empty
// host and a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}

// headerInjectingTransport adds the configured User-Agent, cookie and
// headers to every request, redirects included.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}

	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}

	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
