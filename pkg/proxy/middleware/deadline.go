package middleware

import (
	"context"
	"net/http"
	"time"
)

// Deadline attaches the overall request deadline to the context. Expiry
// cancels the context, which flows through admission waits, scans, and the
// backend call on the same path as a client disconnect; the handler owns
// writing the timeout response. A non-positive deadline disables it.
func Deadline(deadline time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if deadline <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), deadline)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
