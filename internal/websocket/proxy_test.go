package websocket

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestIsUpgradeRequest(t *testing.T) {
	tests := []struct {
		name       string
		connection string
		upgrade    string
		want       bool
	}{
		{"valid websocket", "Upgrade", "websocket", true},
		{"case insensitive", "upgrade", "WebSocket", true},
		{"keep-alive, upgrade", "keep-alive, Upgrade", "websocket", true},
		{"no connection header", "", "websocket", false},
		{"no upgrade header", "Upgrade", "", false},
		{"wrong upgrade", "Upgrade", "h2c", false},
		{"no headers", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws", nil)
			if tt.connection != "" {
				req.Header.Set("Connection", tt.connection)
			}
			if tt.upgrade != "" {
				req.Header.Set("Upgrade", tt.upgrade)
			}
			if got := IsUpgradeRequest(req); got != tt.want {
				t.Errorf("IsUpgradeRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}

// echoBackend accepts one connection, answers the upgrade handshake, then
// echoes raw bytes until the peer closes.
func echoBackend(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			if line == "\r\n" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 101 Switching Protocols\r\nConnection: Upgrade\r\nUpgrade: websocket\r\n\r\n"))
		io.Copy(conn, br)
	}()

	return ln
}

func TestProxyPipesBytes(t *testing.T) {
	backend := echoBackend(t)
	defer backend.Close()

	target := &url.URL{Scheme: "http", Host: backend.Addr().String()}
	p := NewProxy(2*time.Second, false)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.ServeHTTP(w, r, target, r.Header)
	}))
	defer server.Close()

	addr := strings.TrimPrefix(server.URL, "http://")
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, err = conn.Write([]byte("GET /ws HTTP/1.1\r\nHost: port-8080-demo.cmux.sh\r\nConnection: Upgrade\r\nUpgrade: websocket\r\nSec-WebSocket-Key: dGVzdA==\r\n\r\n"))
	if err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(status, "101") {
		t.Fatalf("handshake status line = %q", status)
	}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if line == "\r\n" {
			break
		}
	}

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(br, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "hello" {
		t.Errorf("echo = %q", buf)
	}
}

func TestProxyBackendUnreachable(t *testing.T) {
	target := &url.URL{Scheme: "http", Host: "127.0.0.1:1"} // nothing listens here
	p := NewProxy(500*time.Millisecond, false)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")

	p.ServeHTTP(rr, req, target, req.Header)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestDialTargetSelfSignedBackend(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	conn, err := NewProxy(time.Second, true).dialTarget(target)
	if err != nil {
		t.Fatalf("permissive dial failed: %v", err)
	}
	conn.Close()

	if conn, err := NewProxy(time.Second, false).dialTarget(target); err == nil {
		conn.Close()
		t.Fatal("strict dial accepted a self-signed certificate")
	}
}
