// Package websocket tunnels upgraded connections between the client and the
// resolved backend. Frames are opaque bytes: no rewriting is applied, and
// connections are exempt from the request-level timeout once upgraded.
package websocket

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cmux/edge/internal/logging"
)

// Proxy pipes WebSocket connections via HTTP hijack.
type Proxy struct {
	dialTimeout time.Duration
	insecureTLS bool
}

// NewProxy creates a WebSocket proxy. insecureTLS mirrors the HTTP
// transport's upstream certificate posture so WSS dials and plain forwards
// accept the same backends.
func NewProxy(dialTimeout time.Duration, insecureTLS bool) *Proxy {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Proxy{dialTimeout: dialTimeout, insecureTLS: insecureTLS}
}

// IsUpgradeRequest checks if the request is a WebSocket upgrade request.
func IsUpgradeRequest(r *http.Request) bool {
	connection := strings.ToLower(r.Header.Get("Connection"))
	upgrade := strings.ToLower(r.Header.Get("Upgrade"))

	return strings.Contains(connection, "upgrade") && upgrade == "websocket"
}

// ServeHTTP replays the upgrade handshake against the target and, once both
// sides agree, pipes raw bytes in both directions until either closes.
// The forwarded header set is prepared by the caller (markers injected,
// hop-by-hop stripped except the upgrade negotiation pair).
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request, target *url.URL, header http.Header) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "WebSocket upgrade not supported", http.StatusInternalServerError)
		return
	}

	backendConn, err := p.dialTarget(target)
	if err != nil {
		logging.Warn("websocket backend dial failed",
			zap.String("host", r.Host),
			zap.Error(err),
		)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer backendConn.Close()

	clientConn, clientBuf, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, "Failed to hijack connection", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	// Clear any server read deadline; the tunnel lives until either side
	// closes.
	clientConn.SetDeadline(time.Time{})

	// Replay the upgrade request line and headers to the backend.
	reqPath := r.URL.RequestURI()
	if reqPath == "" {
		reqPath = "/"
	}
	var sb strings.Builder
	sb.WriteString(r.Method + " " + reqPath + " HTTP/1.1\r\n")
	sb.WriteString("Host: " + target.Host + "\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	for key, values := range header {
		switch http.CanonicalHeaderKey(key) {
		case "Host", "Connection", "Upgrade":
			continue
		}
		for _, v := range values {
			sb.WriteString(key + ": " + v + "\r\n")
		}
	}
	sb.WriteString("\r\n")

	if _, err := backendConn.Write([]byte(sb.String())); err != nil {
		logging.Warn("websocket handshake write failed", zap.Error(err))
		clientBuf.WriteString("HTTP/1.1 502 Bad Gateway\r\n\r\n")
		clientBuf.Flush()
		return
	}

	// Pipe both directions. Any bytes the client buffered before the hijack
	// (rare but possible with eager clients) are flushed to the backend first.
	errCh := make(chan error, 2)

	go func() {
		if n := clientBuf.Reader.Buffered(); n > 0 {
			peeked, _ := clientBuf.Reader.Peek(n)
			if _, err := backendConn.Write(peeked); err != nil {
				errCh <- err
				return
			}
			clientBuf.Reader.Discard(n)
		}
		_, err := io.Copy(backendConn, clientConn)
		errCh <- err
	}()

	go func() {
		_, err := io.Copy(clientConn, backendConn)
		errCh <- err
	}()

	// Wait for either direction to finish, then give the other a moment.
	<-errCh
	clientConn.SetDeadline(time.Now().Add(1 * time.Second))
	backendConn.SetDeadline(time.Now().Add(1 * time.Second))
	<-errCh
}

// dialTarget connects to the target authority, wrapping in TLS for https/wss.
func (p *Proxy) dialTarget(target *url.URL) (net.Conn, error) {
	addr := target.Host
	secure := target.Scheme == "https" || target.Scheme == "wss"
	if !strings.Contains(addr, ":") {
		if secure {
			addr += ":443"
		} else {
			addr += ":80"
		}
	}

	if secure {
		dialer := &net.Dialer{Timeout: p.dialTimeout}
		return tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
			ServerName:         target.Hostname(),
			InsecureSkipVerify: p.insecureTLS,
		})
	}
	return net.DialTimeout("tcp", addr, p.dialTimeout)
}
