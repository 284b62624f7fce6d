package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// acceptGUID is the fixed GUID appended to the client key (RFC 6455, section 1.3).
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var ErrMissingKey = errors.New("missing Sec-WebSocket-Key header")

// AcceptKey computes the Sec-WebSocket-Accept value for a client key.
func AcceptKey(key string) string {
	sum := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ReadRequest reads the HTTP upgrade request from the start of a stream.
// Bytes following the request stay buffered in br.
func ReadRequest(br *bufio.Reader) (*http.Request, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("read upgrade request: %w", err)
	}
	return req, nil
}

// Handshake validates an upgrade request and returns the accept value to
// send back.
func Handshake(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return "", ErrMissingKey
	}
	return AcceptKey(key), nil
}

// WriteAccept writes the 101 Switching Protocols response.
func WriteAccept(w io.Writer, accept string) error {
	_, err := io.WriteString(w, "HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: "+accept+"\r\n\r\n")
	return err
}

// WriteReject writes a plain text HTTP error response.
func WriteReject(w io.Writer, status int, message string) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Content-Length: %d\r\n"+
		"Connection: close\r\n\r\n%s",
		status, http.StatusText(status), len(message), message)
	return err
}
