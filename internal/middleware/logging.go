package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cmux/edge/internal/logging"
)

// loggingResponseWriter records the status and byte count of a response.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack is forwarded so WebSocket upgrades still work under logging.
func (w *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

// Unwrap exposes the underlying writer for http.ResponseController.
func (w *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Logging writes a structured access log line per request.
func Logging() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingResponseWriter{ResponseWriter: w}

			next.ServeHTTP(lw, r)

			logging.Info("request",
				zap.String("request_id", GetRequestID(r)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("method", r.Method),
				zap.String("host", r.Host),
				zap.String("path", r.URL.Path),
				zap.Int("status", lw.status),
				zap.Int64("bytes", lw.bytes),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
