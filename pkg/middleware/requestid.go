// Package middleware provides the HTTP middleware shared by the search
// server: request IDs, CORS, Prometheus metrics, request timeouts and a
// per-client throttle.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID propagates an incoming X-Request-ID or assigns a new one, and
// stores it on the request context for logger.FromContext.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
