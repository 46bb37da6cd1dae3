package middleware

import (
	"context"
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout bounds request handling end to end. Speech and
	// notifications never run on the request path, so any request this slow
	// is stuck on the database or the broker.
	DefaultRequestTimeout = 30 * time.Second
)

// Timeout enforces a deadline on every request.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			handler := http.TimeoutHandler(next, timeout, "Request Timeout")
			handler.ServeHTTP(w, r)
		})
	}
}
