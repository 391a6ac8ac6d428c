package rewrite

import (
	"bytes"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/cmux/edge/internal/logging"
)

var headLower = []byte("<head")

// HTMLRule injects the routing config block and the service-worker
// registration into HTML documents, as early as possible inside <head>.
// Documents over the buffering cap are relayed unmodified; tunneling still
// works, only the injected config is lost.
type HTMLRule struct {
	MaxBufferBytes int64
}

func (r *HTMLRule) Name() string { return "html" }

func (r *HTMLRule) Matches(resp *http.Response) bool {
	return contentTypeMatches(resp, "text/html")
}

func (r *HTMLRule) Apply(rctx Context, resp *http.Response) (bool, error) {
	// HEAD responses carry the Content-Length a GET would produce; buffering
	// the empty body and resizing it would corrupt that.
	if rctx.Method == http.MethodHead {
		return false, nil
	}

	body, err := readCapped(resp, r.MaxBufferBytes)
	if err != nil {
		return false, err
	}
	if body.overflow {
		logging.Debug("html body over rewrite cap, relaying unmodified",
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

	replaceBody(resp, injectIntoHead(decoded, htmlSnippet(rctx)))
	return true, nil
}

// injectIntoHead places the snippet immediately after the opening <head> tag.
// Documents without a head tag get the snippet prepended.
func injectIntoHead(doc, snippet []byte) []byte {
	idx := indexHeadTag(doc)
	if idx < 0 {
		out := make([]byte, 0, len(snippet)+len(doc))
		out = append(out, snippet...)
		return append(out, doc...)
	}

	out := make([]byte, 0, len(doc)+len(snippet))
	out = append(out, doc[:idx]...)
	out = append(out, snippet...)
	return append(out, doc[idx:]...)
}

// indexHeadTag finds the byte offset just past the opening <head ...> tag,
// matching case-insensitively. Returns -1 when no head tag exists.
func indexHeadTag(doc []byte) int {
	lower := bytes.ToLower(doc)
	start := 0
	for {
		i := bytes.Index(lower[start:], headLower)
		if i < 0 {
			return -1
		}
		i += start
		// Reject <header> and friends: the tag name must end at '>' or space.
		rest := lower[i+len(headLower):]
		if len(rest) == 0 {
			return -1
		}
		if rest[0] == '>' {
			return i + len(headLower) + 1
		}
		if rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n' {
			if close := bytes.IndexByte(rest, '>'); close >= 0 {
				return i + len(headLower) + close + 1
			}
			return -1
		}
		start = i + len(headLower)
	}
}

// htmlSnippet renders the injected config block plus the service-worker
// registration. Deterministic for a given routing context.
func htmlSnippet(rctx Context) []byte {
	var b bytes.Buffer
	b.WriteString("<script>window.__cmuxLocation={scope:")
	b.WriteString(jsString(rctx.Scope))
	b.WriteString(",port:")
	b.WriteString(strconv.Itoa(int(rctx.Port)))
	b.WriteString(",host:")
	b.WriteString(jsString(rctx.Host))
	b.WriteString(",publicSuffix:")
	b.WriteString(jsString(rctx.PublicSuffix))
	b.WriteString("};</script>")
	b.WriteString("<script>if('serviceWorker' in navigator){navigator.serviceWorker.register('/proxy-sw.js');}</script>")
	return b.Bytes()
}
