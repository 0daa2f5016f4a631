package executor

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
)

type staticSource struct {
	snap  *index.Snapshot
	err   error
	calls int
}

func (s *staticSource) Refresh(context.Context) (*index.Snapshot, error) {
	s.calls++
	return s.snap, s.err
}

func fruitSnapshot() *index.Snapshot {
	mtime := time.Unix(1700000000, 0)
	return index.Assemble("/corpus", 3, time.Unix(0, 0), []index.Document{
		{Path: "/corpus/a.txt", Text: "apple banana apple", ModTime: mtime},
		{Path: "/corpus/b.txt", Text: "banana cherry", ModTime: mtime},
		{Path: "/corpus/sub/c.txt", Text: "apple apple apple", ModTime: mtime},
	})
}

func newExecutor(src SnapshotSource) *Executor {
	return New(src, config.Default().Search)
}

func TestSearch_FruitScenario(t *testing.T) {
	exec := newExecutor(&staticSource{snap: fruitSnapshot()})

	results, err := exec.Search(context.Background(), "apple", 20)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "c.txt", results[0].Title)
	assert.Equal(t, "sub/c.txt", results[0].Path)
	assert.Equal(t, "a.txt", results[1].Title)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Equal(t, int64(1700000000), results[0].MTime)
	assert.Equal(t, "<mark>apple</mark> <mark>apple</mark> <mark>apple</mark>", results[0].Snippet)
}

func TestSearch_LimitOne(t *testing.T) {
	exec := newExecutor(&staticSource{snap: fruitSnapshot()})

	results, err := exec.Search(context.Background(), "apple", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c.txt", results[0].Title)
}

func TestSearch_ScoreRoundedToFourDecimals(t *testing.T) {
	exec := newExecutor(&staticSource{snap: fruitSnapshot()})

	results, err := exec.Search(context.Background(), "banana cherry", 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, math.Round(r.Score*1e4)/1e4, r.Score)
	}
}

func TestSearch_EmptyQuerySkipsRefresh(t *testing.T) {
	src := &staticSource{snap: fruitSnapshot()}
	exec := newExecutor(src)

	for _, q := range []string{"", "   ", "!!! ---"} {
		results, err := exec.Search(context.Background(), q, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.NotNil(t, results)
	}
	assert.Equal(t, 0, src.calls)
}

func TestSearch_NoMatches(t *testing.T) {
	exec := newExecutor(&staticSource{snap: fruitSnapshot()})
	results, err := exec.Search(context.Background(), "durian", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_RefreshError(t *testing.T) {
	boom := errors.New("root gone")
	exec := newExecutor(&staticSource{err: boom})
	_, err := exec.Search(context.Background(), "apple", 10)
	require.ErrorIs(t, err, boom)
}

func TestExecuteOn_Stats(t *testing.T) {
	exec := newExecutor(&staticSource{})
	res := exec.ExecuteOn(context.Background(), fruitSnapshot(), parser.Parse("apple cherry"), 10)

	assert.Equal(t, uint64(3), res.Version)
	assert.Equal(t, 3, res.TotalHits)
	assert.Equal(t, map[string]int{"apple": 2, "cherry": 1}, res.TermStats)
	assert.Len(t, res.Results, 3)
}

func TestSearch_ScriptContentNotIndexed(t *testing.T) {
	root := t.TempDir()
	html := "<html><script>var apple = 1;</script><style>.apple{}</style><p>Banana &amp; split</p></html>"
	require.NoError(t, os.WriteFile(filepath.Join(root, "page.html"), []byte(html), 0o644))

	engine, err := indexer.NewEngine(context.Background(), config.IndexConfig{Root: root, Workers: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	exec := newExecutor(engine)

	results, err := exec.Search(context.Background(), "apple", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = exec.Search(context.Background(), "banana", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "page.html", results[0].Path)
	assert.Contains(t, results[0].Snippet, "<mark>Banana</mark> &amp; split")
}

func TestSearch_SeesModifiedCorpus(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("alpha"), 0o644))

	engine, err := indexer.NewEngine(context.Background(), config.IndexConfig{Root: root, Workers: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	exec := newExecutor(engine)

	results, err := exec.Search(context.Background(), "omega", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, os.WriteFile(path, []byte("omega"), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	results, err = exec.Search(context.Background(), "omega", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func BenchmarkExecuteOn(b *testing.B) {
	words := []string{"index", "search", "ranking", "snippet", "corpus", "token", "engine", "query"}
	docs := make([]index.Document, 2000)
	for i := range docs {
		var sb strings.Builder
		for j := 0; j < 150; j++ {
			sb.WriteString(words[(i*3+j)%len(words)])
			sb.WriteByte(' ')
		}
		docs[i] = index.Document{Path: "/corpus/doc-" + strconv.Itoa(i) + ".txt", Text: sb.String()}
	}
	snap := index.Assemble("/corpus", 1, time.Now(), docs)
	exec := newExecutor(&staticSource{snap: snap})
	plan := parser.Parse("ranking snippet")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exec.ExecuteOn(context.Background(), snap, plan, 20)
	}
}
