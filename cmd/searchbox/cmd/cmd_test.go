package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/errors"
)

func fruitCorpus(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"a.txt":     "apple banana apple",
		"b.txt":     "banana cherry",
		"sub/c.txt": "apple apple apple",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "searchbox "+Version)
	assert.Contains(t, out, "commit "+Commit)

	out, _, err = run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version, strings.TrimSpace(out))
}

func TestSearchCmd_JSON(t *testing.T) {
	root := fruitCorpus(t)
	out, _, err := run(t, "search", root, "apple", "--json")
	require.NoError(t, err)

	var results []executor.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "sub/c.txt", results[0].Path)
	assert.Equal(t, "a.txt", results[1].Path)
}

func TestSearchCmd_Text(t *testing.T) {
	root := fruitCorpus(t)
	out, _, err := run(t, "search", root, "cherry", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "b.txt")
	assert.Contains(t, out, "banana cherry")
	assert.NotContains(t, out, "<mark>")

	out, _, err = run(t, "search", root, "durian")
	require.NoError(t, err)
	assert.Contains(t, out, "No results.")
}

func TestSearchCmd_MissingFolder(t *testing.T) {
	_, _, err := run(t, "search", filepath.Join(t.TempDir(), "missing"), "apple")
	require.ErrorIs(t, err, apperrors.ErrInvalidRoot)
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	_, _, err := run(t, "search", t.TempDir())
	require.Error(t, err)
}

func TestIndexCmd(t *testing.T) {
	root := fruitCorpus(t)
	out, _, err := run(t, "index", root)
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:   3")
	assert.Contains(t, out, "Terms:       3")
	assert.Contains(t, out, "Skipped:     0")
}

func TestServeCmd_RequiresFolder(t *testing.T) {
	_, _, err := run(t, "serve")
	require.Error(t, err)
}

func TestLoadTest(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/search", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		if hits.Add(1)%2 == 0 {
			w.Header().Set("X-Cache", "HIT")
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	stats := runLoad(context.Background(), loadConfig{
		BaseURL:     srv.URL,
		Concurrency: 2,
		Duration:    100 * time.Millisecond,
		Limit:       5,
		Queries:     []string{"apple", "banana"},
	})
	require.Positive(t, stats.total.Load())
	assert.Equal(t, stats.total.Load(), stats.success.Load())

	var buf bytes.Buffer
	printLoadReport(&buf, stats, 100*time.Millisecond)
	assert.Contains(t, buf.String(), "HTTP 200")
	assert.Contains(t, buf.String(), "p95")
}

func TestLatencyPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), latencyPercentile(sorted, 50))
	assert.Equal(t, time.Duration(10), latencyPercentile(sorted, 99))
	assert.Equal(t, time.Duration(1), latencyPercentile(sorted, 0))
	assert.Equal(t, time.Duration(0), latencyPercentile(nil, 50))
}
