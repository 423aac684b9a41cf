package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"time"
)

// checkProxyTimeout bounds the whole SOCKS5 greeting.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 protocol constants
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthNoAccept = 0xFF
)

// CheckSOCKS5 verifies that address accepts connections and completes a
// SOCKS5 greeting offering no authentication.
func CheckSOCKS5(ctx context.Context, address string) ProxyStatus {
	if !isValidProxyAddress(address) {
		return ProxyStatusCannotConnect
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// version, one method, "no authentication"
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}

	if resp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	// socks5AuthNoAccept means the proxy wants credentials we do not have.
	if resp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}
