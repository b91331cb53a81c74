package server

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimit shares one token bucket across all clients.
func rateLimit(perSec int) func(http.Handler) http.Handler {
	lim := rate.NewLimiter(rate.Limit(perSec), perSec)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
