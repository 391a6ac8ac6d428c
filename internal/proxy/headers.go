package proxy

import (
	"net/http"
	"strconv"

	"github.com/cmux/edge/internal/route"
)

// Routing marker headers injected toward the backend. The value is either a
// fixed kind label or the logical port — never the raw instance or scope
// identifier, so tenant sandboxes learn nothing about fleet addressing.
const (
	HeaderProxied           = "X-Cmux-Proxied"
	HeaderWorkspaceInternal = "X-Cmux-Workspace-Internal"
	HeaderPortInternal      = "X-Cmux-Port-Internal"
	HeaderScopeInternal     = "X-Cmux-Scope-Internal"
)

// Hop-by-hop headers that should be removed per standard proxy hygiene.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

// PrepareHeaders clones the inbound headers, strips hop-by-hop headers, and
// injects the proxied flag plus the routing marker for the intent's kind.
func PrepareHeaders(in http.Header, intent route.Intent) http.Header {
	out := in.Clone()
	removeHopHeaders(out)

	out.Set(HeaderProxied, "true")
	switch intent.Kind {
	case route.KindWorkspace:
		// The workspace endpoint demultiplexes by the port marker.
		out.Set(HeaderWorkspaceInternal, "workspace")
		out.Set(HeaderPortInternal, strconv.Itoa(int(intent.Port)))
	case route.KindDirectPort:
		out.Set(HeaderPortInternal, strconv.Itoa(int(intent.Port)))
	case route.KindScopeDefault:
		out.Set(HeaderScopeInternal, "default")
	}

	return out
}
