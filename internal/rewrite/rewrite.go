// Package rewrite adjusts upstream responses before they reach the client so
// tunneled applications behave as if they owned their origin. Rules are
// evaluated in order and the first match wins; anything unmatched is relayed
// byte-for-byte.
package rewrite

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Context is the per-request routing information the rules need: the scope
// captured when the request was classified, the logical port, the host the
// client addressed, the public domain suffix, and the request method.
type Context struct {
	Scope        string
	Port         uint16
	Host         string
	PublicSuffix string
	Method       string
}

// Rule rewrites a class of responses. Matches must not consume the body.
// Apply reports whether it modified the response; a matched body can still
// pass through unmodified (over the cap, undecodable encoding, or a
// Location that needs no translation).
type Rule interface {
	Name() string
	Matches(resp *http.Response) bool
	Apply(rctx Context, resp *http.Response) (bool, error)
}

// Config bounds the buffering rules.
type Config struct {
	// MaxBufferBytes caps how much body the HTML and JavaScript rules will
	// buffer. Documents over the cap are relayed unmodified.
	MaxBufferBytes int64
}

// Pipeline holds the ordered rule table.
type Pipeline struct {
	rules []Rule
}

// NewPipeline creates the standard rule table: redirects, HTML, JavaScript.
func NewPipeline(cfg Config) *Pipeline {
	cap := cfg.MaxBufferBytes
	if cap <= 0 {
		cap = 4 << 20
	}
	return &Pipeline{
		rules: []Rule{
			&RedirectRule{},
			&HTMLRule{MaxBufferBytes: cap},
			&JSRule{MaxBufferBytes: cap},
		},
	}
}

// Apply runs the first matching rule against the response, mutating it in
// place. Responses matching no rule pass through untouched. The returned
// name identifies the rule that matched (empty when none did), and modified
// reports whether the response actually changed.
func (p *Pipeline) Apply(rctx Context, resp *http.Response) (name string, modified bool, err error) {
	for _, rule := range p.rules {
		if rule.Matches(resp) {
			modified, err = rule.Apply(rctx, resp)
			return rule.Name(), modified, err
		}
	}
	return "", false, nil
}

// bufferedBody is the outcome of reading a capped body: either the complete
// payload, or the prefix plus the untouched remainder for pass-through.
type bufferedBody struct {
	data     []byte
	overflow bool
}

// readCapped reads at most max+1 bytes from the response body. If the body is
// larger than max it reports overflow and restitches the response so the
// already-read prefix is replayed ahead of the remaining stream.
func readCapped(resp *http.Response, max int64) (bufferedBody, error) {
	buf, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		resp.Body.Close()
		return bufferedBody{}, err
	}

	if int64(len(buf)) > max {
		resp.Body = &replayedBody{
			Reader: io.MultiReader(bytes.NewReader(buf), resp.Body),
			closer: resp.Body,
		}
		return bufferedBody{data: buf, overflow: true}, nil
	}

	resp.Body.Close()
	return bufferedBody{data: buf}, nil
}

type replayedBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayedBody) Close() error { return b.closer.Close() }

// decodeBody decompresses a buffered body according to Content-Encoding.
// Supported encodings: identity, gzip, zstd. The decoded size is bounded by
// max. ok is false when the body should pass through unmodified (unknown
// encoding, malformed stream, or oversized decode).
func decodeBody(data []byte, encoding string, max int64) (decoded []byte, identity bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return data, true, true
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, false, false
		}
		defer gz.Close()
		out, err := io.ReadAll(io.LimitReader(gz, max+1))
		if err != nil || int64(len(out)) > max {
			return nil, false, false
		}
		return out, false, true
	case "zstd":
		dec, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, false, false
		}
		defer dec.Close()
		out, err := io.ReadAll(io.LimitReader(dec.IOReadCloser(), max+1))
		if err != nil || int64(len(out)) > max {
			return nil, false, false
		}
		return out, false, true
	default:
		return nil, false, false
	}
}

// replaceBody swaps in a rewritten body, recomputing Content-Length. The
// rewritten payload is always sent identity-encoded.
func replaceBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.Header.Del("Content-Encoding")
}

// restoreBody puts an unmodified buffered body back for pass-through relay.
func restoreBody(resp *http.Response, body bufferedBody) {
	if body.overflow {
		// readCapped already restitched the stream.
		return
	}
	resp.Body = io.NopCloser(bytes.NewReader(body.data))
}

func contentTypeMatches(resp *http.Response, prefixes ...string) bool {
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	for _, p := range prefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

// jsString renders a Go string as a JavaScript string literal.
func jsString(s string) string {
	return strconv.Quote(s)
}
