package assets

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServiceWorkerHandler(t *testing.T) {
	h := NewServiceWorkerHandler(nil, 60)

	req := httptest.NewRequest("GET", "/proxy-sw.js", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "max-age=60" {
		t.Errorf("Cache-Control = %q", cc)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "self.addEventListener('fetch'") {
		t.Error("script is missing the fetch listener")
	}
	if !strings.Contains(body, "isLoopbackHostname") {
		t.Error("script is missing the loopback helper")
	}
}

func TestServiceWorkerHandlerHead(t *testing.T) {
	h := NewServiceWorkerHandler(nil, 60)

	req := httptest.NewRequest("HEAD", "/proxy-sw.js", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != 200 {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("HEAD response carried a body of %d bytes", rr.Body.Len())
	}
}

func TestServiceWorkerHandlerCustomBody(t *testing.T) {
	h := NewServiceWorkerHandler([]byte("// custom"), 0)

	req := httptest.NewRequest("GET", "/proxy-sw.js", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Body.String() != "// custom" {
		t.Errorf("body = %q", rr.Body.String())
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "max-age=0" {
		t.Errorf("Cache-Control = %q", cc)
	}
}
