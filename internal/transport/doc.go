// Package transport builds the HTTP client shared by page fetches and image
// downloads.
//
// Traffic goes out directly by default. With a proxy address it is routed
// through a SOCKS5 proxy (golang.org/x/net/proxy), and EmbeddedTor starts a
// private Tor daemon (tornago) whose SOCKS port can be used as that proxy.
// Site headers, cookies and the User-Agent are injected into every request,
// including redirects.
package transport
