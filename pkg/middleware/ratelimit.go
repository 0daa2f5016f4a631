package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/ratelimit"
)

// Throttle rejects requests with 429 once the client, identified by remote
// IP, has used its budget.
func Throttle(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(limiter.RetryAfter().Seconds())))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
