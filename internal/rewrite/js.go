package rewrite

import (
	"bytes"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/cmux/edge/internal/logging"
)

// JSRule prepends a location-override shim to JavaScript responses so scripts
// running inside a tunneled page see the virtual origin instead of tripping
// same-origin checks against the edge's public hostname.
type JSRule struct {
	MaxBufferBytes int64
}

func (r *JSRule) Name() string { return "javascript" }

func (r *JSRule) Matches(resp *http.Response) bool {
	return contentTypeMatches(resp, "application/javascript", "text/javascript")
}

func (r *JSRule) Apply(rctx Context, resp *http.Response) (bool, error) {
	if rctx.Method == http.MethodHead {
		return false, nil
	}

	body, err := readCapped(resp, r.MaxBufferBytes)
	if err != nil {
		return false, err
	}
	if body.overflow {
		logging.Debug("js body over rewrite cap, relaying unmodified",
			zap.String("scope", rctx.Scope),
			zap.Int64("cap", r.MaxBufferBytes),
		)
		return false, nil
	}

	decoded, _, ok := decodeBody(body.data, resp.Header.Get("Content-Encoding"), r.MaxBufferBytes)
	if !ok {
		restoreBody(resp, body)
		return false, nil
	}

	shim := jsShim(rctx)
	out := make([]byte, 0, len(shim)+len(decoded))
	out = append(out, shim...)
	out = append(out, decoded...)
	replaceBody(resp, out)
	return true, nil
}

// jsShim renders the window-scoped location override. It is idempotent at
// runtime (guarded on window.__cmuxLocation) and deterministic per context.
func jsShim(rctx Context) []byte {
	origin := "https://" + rctx.Host

	var b bytes.Buffer
	b.WriteString(";(function(){if(typeof window==='undefined'||window.__cmuxLocation){return;}")
	b.WriteString("window.__cmuxLocation={scope:")
	b.WriteString(jsString(rctx.Scope))
	b.WriteString(",port:")
	b.WriteString(strconv.Itoa(int(rctx.Port)))
	b.WriteString(",host:")
	b.WriteString(jsString(rctx.Host))
	b.WriteString(",origin:")
	b.WriteString(jsString(origin))
	b.WriteString(",protocol:\"https:\"};})();\n")
	return b.Bytes()
}
