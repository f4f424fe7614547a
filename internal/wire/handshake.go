package wire

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// acceptGUID is the fixed key-derivation constant from RFC 6455 Section 1.3.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handshake errors.
var (
	ErrNotUpgrade    = errors.New("wire: not a websocket upgrade request")
	ErrMissingKey    = errors.New("wire: missing Sec-WebSocket-Key header")
	ErrNotHijackable = errors.New("wire: response writer does not support hijacking")
)

// IsUpgrade reports whether r declares a WebSocket upgrade intent:
// an Upgrade: websocket header together with Connection: upgrade.
// Requests that fail this check are plain HTTP and should be handled as such.
func IsUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	return headerContainsToken(r.Header.Get("Connection"), "upgrade")
}

// headerContainsToken reports whether a comma-separated header value contains
// the given token, case-insensitively. Browsers send "Connection: Upgrade"
// but proxies may produce e.g. "keep-alive, Upgrade".
func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// AcceptKey computes the Sec-WebSocket-Accept token for a client key:
// base64(SHA-1(key + GUID)).
func AcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Upgrade completes the server side of the handshake: it validates the
// request headers, hijacks the underlying connection and writes the
// 101 Switching Protocols response. On success the caller owns the returned
// net.Conn for the rest of the connection's life; the HTTP server never
// touches it again. On failure the error response has already been written
// and nothing was hijacked.
func Upgrade(w http.ResponseWriter, r *http.Request) (net.Conn, *bufio.Reader, error) {
	if !IsUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return nil, nil, ErrNotUpgrade
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		http.Error(w, "missing Sec-WebSocket-Key", http.StatusBadRequest)
		return nil, nil, ErrMissingKey
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, nil, ErrNotHijackable
	}

	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: hijack: %w", err)
	}

	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + AcceptKey(key) + "\r\n\r\n"
	if _, err := conn.Write([]byte(resp)); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("wire: write upgrade response: %w", err)
	}

	// Keep the hijacked buffered reader: it may already hold bytes the
	// client sent right behind the handshake.
	return conn, rw.Reader, nil
}
