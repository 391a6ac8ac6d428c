package proxy

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cmux/edge/internal/errors"
	"github.com/cmux/edge/internal/route"
)

// Config configures a Forwarder.
type Config struct {
	// RequestTimeout bounds a single upstream round-trip. Zero disables the
	// per-request deadline.
	RequestTimeout time.Duration
	Transport      TransportConfig
}

// Forwarder relays classified requests to resolved sandbox backends.
type Forwarder struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// New creates a Forwarder with its own transport and connection pool.
func New(cfg Config) *Forwarder {
	return &Forwarder{
		transport: NewTransport(cfg.Transport),
		timeout:   cfg.RequestTimeout,
	}
}

// NewWithTransport creates a Forwarder over a caller-supplied transport.
// Used by tests to stub the upstream.
func NewWithTransport(rt http.RoundTripper, timeout time.Duration) *Forwarder {
	return &Forwarder{transport: rt, timeout: timeout}
}

// Forward sends the inbound request to target and returns the upstream
// response. The caller owns the response body. On error the returned
// *errors.EdgeError distinguishes timeouts (504) from transport failures
// (502), and any cancel func has already been handled.
func (f *Forwarder) Forward(r *http.Request, target *url.URL, intent route.Intent) (*http.Response, context.CancelFunc, *errors.EdgeError) {
	ctx := r.Context()
	cancel := context.CancelFunc(func() {})
	if f.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
	}

	out := buildRequest(ctx, r, target, intent)

	resp, err := f.transport.RoundTrip(out)
	if err != nil {
		cancel()
		return nil, nil, mapTransportError(ctx, err)
	}
	removeHopHeaders(resp.Header)
	return resp, cancel, nil
}

// buildRequest copies method, path, query, headers, and body onto the
// resolved base URL.
func buildRequest(ctx context.Context, r *http.Request, target *url.URL, intent route.Intent) *http.Request {
	u := *target
	u.Path = singleJoiningSlash(target.Path, r.URL.Path)
	u.RawQuery = r.URL.RawQuery

	out := &http.Request{
		Method:        r.Method,
		URL:           &u,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        PrepareHeaders(r.Header, intent),
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          u.Host,
	}
	return out.WithContext(ctx)
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash && b != "":
		return a + "/" + b
	}
	return a + b
}

// mapTransportError keeps the cause for logging but never serializes it:
// transport errors carry the resolved upstream URL, which must not reach
// the client.
func mapTransportError(ctx context.Context, err error) *errors.EdgeError {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrGatewayTimeout.Code, errors.ErrGatewayTimeout.Message)
	}
	return errors.Wrap(err, errors.ErrBadGateway.Code, errors.ErrBadGateway.Message)
}

// WriteResponse relays an upstream response to the client, streaming the
// body with periodic flushes so long-polling backends stay responsive.
func WriteResponse(w http.ResponseWriter, resp *http.Response) error {
	h := w.Header()
	for k, vv := range resp.Header {
		for _, v := range vv {
			h.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	return copyBody(w, resp.Body)
}

func copyBody(w http.ResponseWriter, body io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
