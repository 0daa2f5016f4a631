package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/logger"
)

// Timeout bounds the handler's context. When the deadline passes before the
// handler has written anything, the client gets a 504 and later writes from
// the handler are discarded.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			done := make(chan struct{})
			tw := &timeoutWriter{w: w, header: make(http.Header)}
			go func() {
				defer close(done)
				next.ServeHTTP(tw, r.WithContext(ctx))
			}()
			select {
			case <-done:
				return
			case <-ctx.Done():
			}

			tw.mu.Lock()
			if tw.wroteHeader {
				tw.mu.Unlock()
				<-done
				return
			}
			tw.timedOut = true
			tw.mu.Unlock()
			logger.FromContext(r.Context()).Warn("request timed out",
				"method", r.Method, "path", r.URL.Path, "timeout", timeout)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGatewayTimeout)
			_, _ = w.Write([]byte(`{"error":"request timeout"}` + "\n"))
		})
	}
}

// timeoutWriter buffers headers so the handler goroutine never touches the
// real header map after a timeout response has been sent.
type timeoutWriter struct {
	w           http.ResponseWriter
	header      http.Header
	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.writeHeaderLocked(http.StatusOK)
	return tw.w.Write(b)
}
