package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// HTTPMiddleware rejects requests with 429 once the bucket for keyFunc(r) is empty.
// An empty key falls back to the global bucket.
func HTTPMiddleware(limiter Limiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)

			var allowed bool
			if key == "" {
				allowed = limiter.TryAcquire()
			} else {
				allowed = limiter.TryAcquireForKey(key)
			}

			if !allowed {
				if rps, ok := limiter.Stats()["requests_per_second"].(float64); ok {
					w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%g", rps))
					w.Header().Set("X-RateLimit-Remaining", "0")
					w.Header().Set("Retry-After", "1")
				}
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IPKey extracts the client IP for per-client limiting
func IPKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
