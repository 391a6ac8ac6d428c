// Package assets serves the fixed service-worker script. The script resolves
// for any host, valid or not, so the path stays reachable regardless of
// domain health.
package assets

import (
	_ "embed"
	"net/http"
	"strconv"
)

//go:embed proxy-sw.js
var serviceWorkerScript []byte

// ServiceWorkerScript returns the embedded script body.
func ServiceWorkerScript() []byte {
	return serviceWorkerScript
}

// ServiceWorkerHandler serves the service-worker script with a fixed content
// type and a short cache lifetime.
type ServiceWorkerHandler struct {
	body         []byte
	cacheControl string
}

// NewServiceWorkerHandler creates the handler. A nil body uses the embedded
// script; maxAge is the Cache-Control max-age in seconds.
func NewServiceWorkerHandler(body []byte, maxAge int) *ServiceWorkerHandler {
	if body == nil {
		body = serviceWorkerScript
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return &ServiceWorkerHandler{
		body:         body,
		cacheControl: "max-age=" + strconv.Itoa(maxAge),
	}
}

func (h *ServiceWorkerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", h.cacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(h.body)))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		w.Write(h.body)
	}
}
