package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

func init() {
	// Batch crypto/rand reads into a pool to avoid a syscall per UUID.
	uuid.EnableRandPool()
}

type requestIDKey struct{}

// RequestIDHeader is the header carrying the request correlation ID.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns each request a correlation ID, trusting an inbound one
// when present, and echoes it on the response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
				r.Header.Set(RequestIDHeader, requestID)
			}

			w.Header().Set(RequestIDHeader, requestID)

			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the request's correlation ID, or "" when the request
// never passed through the RequestID middleware.
func GetRequestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
