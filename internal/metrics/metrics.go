package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Collector tracks edge proxy metrics for Prometheus-compatible export.
type Collector struct {
	mu sync.RWMutex

	// Request metrics, keyed by route kind.
	requestsTotal    map[string]int64          // key: kind|method|status
	requestDurations map[string]*HistogramData // key: kind

	// Resolver cache effectiveness.
	resolveHits   map[string]int64 // key: kind
	resolveMisses map[string]int64 // key: kind

	// Response rewriting, keyed by rule name.
	rewritesTotal map[string]int64

	// Matched bodies relayed unmodified (over the cap or undecodable).
	rewritePassthroughs int64

	// Tunnel and defensive counters.
	websocketUpgrades int64
	loopsDetected     int64
}

// HistogramData stores histogram-like data for durations.
type HistogramData struct {
	Count   int64
	Sum     float64
	Buckets map[float64]int64 // upper bound -> count
}

// DefaultBuckets are default histogram buckets in seconds.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		requestsTotal:    make(map[string]int64),
		requestDurations: make(map[string]*HistogramData),
		resolveHits:      make(map[string]int64),
		resolveMisses:    make(map[string]int64),
		rewritesTotal:    make(map[string]int64),
	}
}

// RecordRequest records a completed request for the given route kind.
func (c *Collector) RecordRequest(kind, method string, statusCode int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := kind + "|" + method + "|" + strconv.Itoa(statusCode)
	c.requestsTotal[key]++

	hd, ok := c.requestDurations[kind]
	if !ok {
		hd = &HistogramData{
			Buckets: make(map[float64]int64),
		}
		for _, b := range DefaultBuckets {
			hd.Buckets[b] = 0
		}
		c.requestDurations[kind] = hd
	}

	secs := duration.Seconds()
	hd.Count++
	hd.Sum += secs
	for _, bound := range DefaultBuckets {
		if secs <= bound {
			hd.Buckets[bound]++
		}
	}
}

// RecordResolveHit records a resolver cache hit.
func (c *Collector) RecordResolveHit(kind string) {
	c.mu.Lock()
	c.resolveHits[kind]++
	c.mu.Unlock()
}

// RecordResolveMiss records a resolver cache miss.
func (c *Collector) RecordResolveMiss(kind string) {
	c.mu.Lock()
	c.resolveMisses[kind]++
	c.mu.Unlock()
}

// RecordRewrite records a response body rewritten by the named rule.
func (c *Collector) RecordRewrite(rule string) {
	c.mu.Lock()
	c.rewritesTotal[rule]++
	c.mu.Unlock()
}

// RecordRewritePassthrough records a matched body relayed unmodified, either
// over the buffering cap or carrying an encoding the rules cannot decode.
func (c *Collector) RecordRewritePassthrough() {
	c.mu.Lock()
	c.rewritePassthroughs++
	c.mu.Unlock()
}

// RecordWebSocketUpgrade records an established WebSocket tunnel.
func (c *Collector) RecordWebSocketUpgrade() {
	c.mu.Lock()
	c.websocketUpgrades++
	c.mu.Unlock()
}

// RecordLoopDetected records a request rejected because it already carried
// the proxied marker.
func (c *Collector) RecordLoopDetected() {
	c.mu.Lock()
	c.loopsDetected++
	c.mu.Unlock()
}

// WritePrometheus writes metrics in Prometheus text exposition format.
func (c *Collector) WritePrometheus(w http.ResponseWriter) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeHelp(w, "edge_requests_total", "Total number of requests", "counter")
	for key, count := range c.requestsTotal {
		parts := splitKey(key, 3)
		if len(parts) == 3 {
			writeMetric(w, "edge_requests_total", count,
				"kind", parts[0], "method", parts[1], "status", parts[2])
		}
	}

	writeHelp(w, "edge_request_duration_seconds", "Request duration in seconds", "histogram")
	for kind, hd := range c.requestDurations {
		for _, bound := range DefaultBuckets {
			cnt := hd.Buckets[bound]
			writeMetricFloat(w, "edge_request_duration_seconds_bucket", float64(cnt),
				"kind", kind, "le", strconv.FormatFloat(bound, 'f', -1, 64))
		}
		writeMetricFloat(w, "edge_request_duration_seconds_bucket", float64(hd.Count),
			"kind", kind, "le", "+Inf")
		writeMetricFloat(w, "edge_request_duration_seconds_sum", hd.Sum,
			"kind", kind)
		writeMetric(w, "edge_request_duration_seconds_count", hd.Count,
			"kind", kind)
	}

	writeHelp(w, "edge_resolve_cache_hits_total", "Total resolver cache hits", "counter")
	for kind, count := range c.resolveHits {
		writeMetric(w, "edge_resolve_cache_hits_total", count, "kind", kind)
	}

	writeHelp(w, "edge_resolve_cache_misses_total", "Total resolver cache misses", "counter")
	for kind, count := range c.resolveMisses {
		writeMetric(w, "edge_resolve_cache_misses_total", count, "kind", kind)
	}

	writeHelp(w, "edge_rewrites_total", "Total response bodies rewritten", "counter")
	for rule, count := range c.rewritesTotal {
		writeMetric(w, "edge_rewrites_total", count, "rule", rule)
	}

	writeHelp(w, "edge_rewrite_passthroughs_total", "Matched bodies relayed unmodified", "counter")
	writeMetric(w, "edge_rewrite_passthroughs_total", c.rewritePassthroughs)

	writeHelp(w, "edge_websocket_upgrades_total", "Total WebSocket tunnels established", "counter")
	writeMetric(w, "edge_websocket_upgrades_total", c.websocketUpgrades)

	writeHelp(w, "edge_loops_detected_total", "Requests rejected by loop detection", "counter")
	writeMetric(w, "edge_loops_detected_total", c.loopsDetected)
}

// Handler returns an http.Handler serving the Prometheus exposition.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.WritePrometheus(w)
	})
}

func writeHelp(w http.ResponseWriter, name, help, metricType string) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
}

func writeMetric(w http.ResponseWriter, name string, value int64, labels ...string) {
	line := name + formatLabels(labels) + " " + strconv.FormatInt(value, 10) + "\n"
	w.Write([]byte(line))
}

func writeMetricFloat(w http.ResponseWriter, name string, value float64, labels ...string) {
	line := name + formatLabels(labels) + " " + strconv.FormatFloat(value, 'f', -1, 64) + "\n"
	w.Write([]byte(line))
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	result := "{"
	for i := 0; i < len(labels)-1; i += 2 {
		if i > 0 {
			result += ","
		}
		result += labels[i] + "=\"" + labels[i+1] + "\""
	}
	return result + "}"
}

func splitKey(key string, n int) []string {
	parts := make([]string, 0, n)
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
			if len(parts) == n-1 {
				parts = append(parts, key[start:])
				return parts
			}
		}
	}
	if start < len(key) {
		parts = append(parts, key[start:])
	}
	return parts
}
