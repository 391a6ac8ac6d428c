// Package edge assembles the request pipeline: classify the hostname,
// resolve the backend, forward, and post-process the response.
package edge

import (
	"bufio"
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cmux/edge/internal/assets"
	"github.com/cmux/edge/internal/config"
	"github.com/cmux/edge/internal/errors"
	"github.com/cmux/edge/internal/logging"
	"github.com/cmux/edge/internal/metrics"
	"github.com/cmux/edge/internal/middleware"
	"github.com/cmux/edge/internal/middleware/cors"
	"github.com/cmux/edge/internal/proxy"
	"github.com/cmux/edge/internal/resolver"
	"github.com/cmux/edge/internal/rewrite"
	"github.com/cmux/edge/internal/route"
	"github.com/cmux/edge/internal/websocket"
)

const apexBody = "cmux!"

var healthBody = []byte(`{"status":"healthy"}`)

// Handler is the single entry point for all proxied traffic.
type Handler struct {
	classifier *route.Classifier
	resolver   *resolver.Bridge
	forwarder  *proxy.Forwarder
	ws         *websocket.Proxy
	pipeline   *rewrite.Pipeline
	cors       *cors.Policy
	sw         *assets.ServiceWorkerHandler
	metrics    *metrics.Collector
	suffix     string
	timeout    time.Duration
}

// NewHandler wires the pipeline from configuration and the externally
// supplied backend lookups.
func NewHandler(cfg *config.Config, lookups resolver.Lookups, collector *metrics.Collector) (*Handler, error) {
	if collector == nil {
		collector = metrics.NewCollector()
	}

	bridge, err := resolver.New(lookups, resolver.Config{
		AllowInsecureUpstream: cfg.Proxy.AllowInsecureUpstream,
		CacheTTL:              cfg.ResolverCache.TTL,
		CacheSize:             cfg.ResolverCache.Size,
		CacheObserver: func(kind string, hit bool) {
			if hit {
				collector.RecordResolveHit(kind)
			} else {
				collector.RecordResolveMiss(kind)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	transport := proxy.DefaultTransportConfig
	if cfg.Proxy.DialTimeout > 0 {
		transport.DialTimeout = cfg.Proxy.DialTimeout
	}
	transport.InsecureSkipVerify = cfg.Proxy.AllowInsecureUpstream
	if cfg.Proxy.MaxIdleConns > 0 {
		transport.MaxIdleConns = cfg.Proxy.MaxIdleConns
	}
	if cfg.Proxy.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.Proxy.MaxIdleConnsPerHost
	}

	return &Handler{
		classifier: route.NewClassifier(cfg.Domain.PublicSuffix),
		resolver:   bridge,
		forwarder: proxy.New(proxy.Config{
			RequestTimeout: cfg.Proxy.RequestTimeout,
			Transport:      transport,
		}),
		ws:       websocket.NewProxy(cfg.Proxy.DialTimeout, cfg.Proxy.AllowInsecureUpstream),
		pipeline: rewrite.NewPipeline(rewrite.Config{MaxBufferBytes: cfg.Rewrite.MaxBufferBytes}),
		cors: cors.New(cors.Config{
			SpecialPorts: cfg.CORS.SpecialPorts,
			EmbedOrigins: cfg.CORS.EmbedOrigins,
			MaxAge:       cfg.CORS.MaxAge,
		}),
		sw:      assets.NewServiceWorkerHandler(nil, cfg.ServiceWorker.MaxAge),
		metrics: collector,
		suffix:  cfg.Domain.PublicSuffix,
		timeout: cfg.Proxy.RequestTimeout,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	kind := "invalid"
	defer func() {
		h.metrics.RecordRequest(kind, r.Method, sw.status, time.Since(start))
	}()

	// The fixed asset resolves for any host, including loopback probes.
	if r.URL.Path == route.ServiceWorkerPath {
		kind = route.KindServiceWorkerAsset.String()
		h.sw.ServeHTTP(sw, r)
		return
	}

	// A request already carrying the proxied marker came back through the
	// edge; forwarding it again would recurse forever.
	if r.Header.Get(proxy.HeaderProxied) == "true" {
		kind = "loop"
		h.metrics.RecordLoopDetected()
		h.writeError(sw, r, kind, "", errors.ErrLoopDetected)
		return
	}

	intent, cerr := h.classifier.Classify(r.Host, r.URL.Path)

	if r.URL.Path == "/health" && (cerr != nil || intent.Kind == route.KindApex) {
		kind = "health"
		sw.Header().Set("Content-Type", "application/json")
		sw.Write(healthBody)
		return
	}

	if cerr != nil {
		h.writeError(sw, r, kind, "", toEdgeError(cerr))
		return
	}
	kind = intent.Kind.String()

	if intent.Kind == route.KindApex {
		sw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		sw.Write([]byte(apexBody))
		return
	}

	// Special-port preflights are answered at the edge so tooling works even
	// when the backend has no CORS support.
	if r.Method == http.MethodOptions && h.cors.IsSpecialPort(intent.Port) {
		h.cors.HandlePreflight(sw)
		return
	}

	// Lookups run against external collaborators; a hung one must not pin the
	// request past the configured budget.
	resolveCtx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		resolveCtx, cancel = context.WithTimeout(resolveCtx, h.timeout)
		defer cancel()
	}
	target, err := h.resolver.Resolve(resolveCtx, intent)
	if err != nil {
		h.writeError(sw, r, kind, intent.Scope(), resolutionError(err))
		return
	}

	if websocket.IsUpgradeRequest(r) {
		h.metrics.RecordWebSocketUpgrade()
		h.ws.ServeHTTP(sw, r, target.URL, proxy.PrepareHeaders(r.Header, intent))
		return
	}

	resp, cancel, ferr := h.forwarder.Forward(r, target.URL, intent)
	if ferr != nil {
		h.writeError(sw, r, kind, target.Scope, ferr)
		return
	}
	defer cancel()
	defer resp.Body.Close()

	rctx := rewrite.Context{
		Scope:        target.Scope,
		Port:         intent.Port,
		Host:         requestHost(r),
		PublicSuffix: h.suffix,
		Method:       r.Method,
	}
	rule, modified, rwerr := h.pipeline.Apply(rctx, resp)
	if rwerr != nil {
		h.writeError(sw, r, kind, target.Scope, errors.Wrap(rwerr, errors.ErrBadGateway.Code, errors.ErrBadGateway.Message))
		return
	}
	switch {
	case modified:
		h.metrics.RecordRewrite(rule)
	case rule == "html" || rule == "javascript":
		h.metrics.RecordRewritePassthrough()
	}

	if h.cors.IsSpecialPort(intent.Port) {
		h.cors.ApplyResponseHeaders(resp.Header)
	}

	if err := proxy.WriteResponse(sw, resp); err != nil {
		// Headers are already on the wire; nothing to do but note it.
		logging.Debug("response relay aborted",
			zap.String("request_id", middleware.GetRequestID(r)),
			zap.Error(err),
		)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, kind, scope string, e *errors.EdgeError) {
	requestID := middleware.GetRequestID(r)
	logging.Warn("request failed",
		zap.String("request_id", requestID),
		zap.String("kind", kind),
		zap.String("scope", scope),
		zap.String("host", r.Host),
		zap.String("path", r.URL.Path),
		zap.Int("status", e.Code),
		zap.String("error", e.Error()),
	)
	e.WithRequestID(requestID).WriteJSON(w)
}

func toEdgeError(err error) *errors.EdgeError {
	if e, ok := errors.IsEdgeError(err); ok {
		return e
	}
	return errors.ErrInvalidHost.WithDetails(err.Error())
}

// resolutionError never serializes the lookup failure text; collaborator
// errors can name internal addresses. A lookup that ran out the request
// budget is a timeout, not a bad gateway.
func resolutionError(err error) *errors.EdgeError {
	if e, ok := errors.IsEdgeError(err); ok {
		return e
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrGatewayTimeout.Code, errors.ErrGatewayTimeout.Message)
	}
	return errors.Wrap(err, errors.ErrResolutionFailed.Code, errors.ErrResolutionFailed.Message)
}

// requestHost is the host the client addressed, without any :port.
func requestHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.Host); err == nil {
		return host
	}
	return r.Host
}

// statusWriter captures the final status code for per-kind metrics while
// keeping Flush and Hijack available to the streaming and tunnel paths.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		w.status = http.StatusSwitchingProtocols
		w.wrote = true
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
