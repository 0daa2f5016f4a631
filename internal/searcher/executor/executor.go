package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/searcher/snippet"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/tracing"
)

// Result is one ranked document as returned to clients.
type Result struct {
	Title   string  `json:"title"`
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet"`
	MTime   int64   `json:"mtime"`
}

// SearchResult is a full answer to one query against one snapshot.
type SearchResult struct {
	Query     string         `json:"query"`
	Version   uint64         `json:"version"`
	TotalHits int            `json:"total_hits"`
	Results   []Result       `json:"results"`
	TermStats map[string]int `json:"term_stats"`
}

// SnapshotSource hands out a snapshot that reflects the corpus, rebuilding
// first when it has changed.
type SnapshotSource interface {
	Refresh(ctx context.Context) (*index.Snapshot, error)
}

type Executor struct {
	source       SnapshotSource
	params       ranker.Params
	defaultLimit int
	snippetWidth int
	logger       *slog.Logger
}

func New(source SnapshotSource, cfg config.SearchConfig) *Executor {
	params := ranker.Params{K1: cfg.K1, B: cfg.B}
	if params.K1 == 0 && params.B == 0 {
		params = ranker.DefaultParams()
	}
	return &Executor{
		source:       source,
		params:       params,
		defaultLimit: cfg.DefaultLimit,
		snippetWidth: cfg.SnippetWidth,
		logger:       slog.Default().With("component", "query-executor"),
	}
}

// Snapshot returns the snapshot queries should run against.
func (e *Executor) Snapshot(ctx context.Context) (*index.Snapshot, error) {
	ctx, span := tracing.StartChildSpan(ctx, "refresh")
	defer span.End()
	snap, err := e.source.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	span.SetAttr("version", snap.Version())
	return snap, nil
}

// Search tokenises query, refreshes the index if needed and returns the
// ranked results. An empty or whitespace-only query yields no results.
func (e *Executor) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	res, err := e.Execute(ctx, parser.Parse(query), limit)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Execute runs plan against a freshly checked snapshot.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if plan.Empty() {
		return emptyResult(plan), nil
	}
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing index: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.ExecuteOn(ctx, snap, plan, limit), nil
}

// ExecuteOn runs plan against snap. It does not consult the corpus, so
// every call with the same arguments gives the same answer.
func (e *Executor) ExecuteOn(ctx context.Context, snap *index.Snapshot, plan *parser.QueryPlan, limit int) *SearchResult {
	if plan.Empty() {
		res := emptyResult(plan)
		res.Version = snap.Version()
		return res
	}
	if limit <= 0 {
		limit = e.defaultLimit
	}

	termStats := make(map[string]int)
	candidates := make(map[int]struct{})
	for _, term := range plan.Terms {
		postings := snap.Postings(term)
		if len(postings) == 0 {
			continue
		}
		termStats[term] = len(postings)
		for _, p := range postings {
			candidates[p.DocID] = struct{}{}
		}
	}

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	ranked := ranker.Rank(snap, plan.Terms, e.params, limit)
	rankSpan.SetAttr("candidates", len(candidates))
	rankSpan.End()

	_, snippetSpan := tracing.StartChildSpan(ctx, "snippets")
	results := make([]Result, 0, len(ranked))
	for _, sd := range ranked {
		doc, ok := snap.Document(sd.DocID)
		if !ok {
			continue
		}
		results = append(results, Result{
			Title:   doc.Title,
			Path:    indexer.RelPath(snap.Root(), doc.Path),
			Score:   roundScore(sd.Score),
			Snippet: snippet.Make(doc.Text, plan.Terms, e.snippetWidth),
			MTime:   modTime(doc.ModTime),
		})
	}
	snippetSpan.End()

	e.logger.Info("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"version", snap.Version(),
		"candidates", len(candidates),
		"results", len(results),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		Version:   snap.Version(),
		TotalHits: len(candidates),
		Results:   results,
		TermStats: termStats,
	}
}

func emptyResult(plan *parser.QueryPlan) *SearchResult {
	return &SearchResult{
		Query:     plan.RawQuery,
		Results:   []Result{},
		TermStats: map[string]int{},
	}
}

func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}

func modTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
