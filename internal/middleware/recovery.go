package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/cmux/edge/internal/errors"
	"github.com/cmux/edge/internal/logging"
)

// Recovery creates a panic recovery middleware. A panicking request is
// answered with the typed 500; other in-flight requests are unaffected.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Error("Panic recovered",
						zap.Any("error", err),
						zap.String("host", r.Host),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)

					edgeErr := errors.ErrInternalServer.WithDetails(fmt.Sprintf("panic: %v", err))
					if reqID := w.Header().Get("X-Request-ID"); reqID != "" {
						edgeErr = edgeErr.WithRequestID(reqID)
					}
					edgeErr.WriteJSON(w)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
