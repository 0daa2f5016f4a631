// Package tracing records per-request span trees in the request context and
// writes them to slog when the request finishes. It covers the phases of a
// query (staleness check, rebuild, ranking, snippets) without an external
// collector.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed phase of a request.
type Span struct {
	Name     string
	TraceID  string
	Start    time.Time
	Duration time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    []slog.Attr
}

// StartSpan opens a root span identified by traceID, usually the request id.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, Start: time.Now()}
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan opens a span under the one carried by ctx. Without a parent
// the span is still timed but never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, Start: time.Now()}
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the innermost span in ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

func (s *Span) End() {
	s.Duration = time.Since(s.Start)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, slog.Any(key, value))
	s.mu.Unlock()
}

// Children returns the direct child spans.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// Log writes the span tree to logger at debug level, one record per span.
func (s *Span) Log(ctx context.Context, logger *slog.Logger) {
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	s.log(ctx, logger, 0)
}

func (s *Span) log(ctx context.Context, logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := append([]slog.Attr{
		slog.String("trace_id", s.TraceID),
		slog.String("span", s.Name),
		slog.Float64("duration_ms", float64(s.Duration.Microseconds())/1000),
		slog.Int("depth", depth),
	}, s.attrs...)
	children := s.children
	s.mu.Unlock()

	logger.LogAttrs(ctx, slog.LevelDebug, "span", attrs...)
	for _, child := range children {
		child.log(ctx, logger, depth+1)
	}
}
