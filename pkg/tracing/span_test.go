package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	childCtx, refresh := StartChildSpan(ctx, "refresh")
	refresh.SetAttr("stale", false)
	refresh.End()
	_, rank := StartChildSpan(ctx, "rank")
	rank.End()
	root.End()

	assert.Same(t, refresh, SpanFromContext(childCtx))
	children := root.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "req-1", children[0].TraceID)
	assert.Equal(t, "rank", children[1].Name)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root.Log(context.Background(), logger)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "span=refresh")
	assert.Contains(t, lines[1], "stale=false")
	assert.Contains(t, lines[1], "depth=1")
}

func TestLog_SkippedAboveDebug(t *testing.T) {
	_, root := StartSpan(context.Background(), "search", "req-2")
	root.End()

	var buf bytes.Buffer
	root.Log(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Empty(t, buf.String())
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	span.End()
	assert.Empty(t, span.TraceID)
	assert.Same(t, span, SpanFromContext(ctx))
}
