// Package cors implements the special-port CORS policy: a configured set of
// ports always receives permissive cross-origin headers from the edge,
// because sandboxed backends are not expected to manage CORS themselves.
package cors

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultAllowMethods = "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	defaultAllowHeaders = "Content-Type, Authorization, X-Requested-With"
)

// Policy answers preflights and force-sets response headers for special ports.
type Policy struct {
	specialPorts map[uint16]bool
	embedOrigins string // rendered frame-ancestors source list, may be empty
	maxAge       string
}

// Config configures the policy.
type Config struct {
	// SpecialPorts always receive wildcard CORS regardless of what the
	// upstream response carries.
	SpecialPorts []uint16
	// EmbedOrigins, when set, replaces any frame-ancestors CSP directive on
	// special-port responses and drops X-Frame-Options, so the dashboard can
	// embed the proxied service.
	EmbedOrigins []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// New creates a policy from config.
func New(cfg Config) *Policy {
	p := &Policy{
		specialPorts: make(map[uint16]bool, len(cfg.SpecialPorts)),
	}
	for _, port := range cfg.SpecialPorts {
		p.specialPorts[port] = true
	}
	if len(cfg.EmbedOrigins) > 0 {
		p.embedOrigins = "frame-ancestors 'self' " + strings.Join(cfg.EmbedOrigins, " ") + ";"
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 86400
	}
	p.maxAge = strconv.Itoa(maxAge)
	return p
}

// IsSpecialPort reports whether the port is on the allow-list.
func (p *Policy) IsSpecialPort(port uint16) bool {
	return p.specialPorts[port]
}

// HandlePreflight answers an OPTIONS request directly, without an upstream
// call: 204, wildcard origin, no credentials.
func (p *Policy) HandlePreflight(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", defaultAllowMethods)
	h.Set("Access-Control-Allow-Headers", defaultAllowHeaders)
	h.Set("Access-Control-Max-Age", p.maxAge)
	w.WriteHeader(http.StatusNoContent)
}

// ApplyResponseHeaders force-sets the wildcard origin on a proxied response,
// overriding whatever the upstream set, and normalizes embedding headers.
// The edge trusts its own allow-list over the backend's cooperation.
func (p *Policy) ApplyResponseHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Del("Access-Control-Allow-Credentials")

	if p.embedOrigins != "" {
		h.Del("X-Frame-Options")
		if csp := h.Get("Content-Security-Policy"); csp != "" {
			h.Set("Content-Security-Policy", replaceFrameAncestors(csp, p.embedOrigins))
		}
	}
}

// replaceFrameAncestors swaps the frame-ancestors directive of a CSP value
// for the configured one, leaving other directives intact. A CSP without the
// directive is returned unchanged.
func replaceFrameAncestors(csp, replacement string) string {
	directives := strings.Split(csp, ";")
	out := make([]string, 0, len(directives))
	replaced := false
	for _, d := range directives {
		trimmed := strings.TrimSpace(d)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(trimmed), "frame-ancestors") {
			if !replaced {
				out = append(out, strings.TrimSuffix(replacement, ";"))
				replaced = true
			}
			continue
		}
		out = append(out, trimmed)
	}
	if !replaced {
		return csp
	}
	return strings.Join(out, "; ") + ";"
}
