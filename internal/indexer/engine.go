package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/loader"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/scanner"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/staleness"
	"github.com/Adithya-Monish-Kumar-K/searchbox/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/errors"
)

const rebuildKey = "rebuild"

// RebuildResult describes the snapshot published by a rebuild.
type RebuildResult struct {
	Documents int           `json:"docs"`
	Skipped   int           `json:"skipped"`
	Version   uint64        `json:"version"`
	Duration  time.Duration `json:"duration_ns"`
	// Shared is true when this caller joined a build already in flight.
	Shared bool `json:"shared"`
}

// Status is a point-in-time view of the published snapshot.
type Status struct {
	Root         string    `json:"root"`
	Documents    int       `json:"docs"`
	Terms        int       `json:"terms"`
	AvgDocLength float64   `json:"avg_doc_length"`
	Version      uint64    `json:"version"`
	BuiltAt      time.Time `json:"built_at"`
	Fingerprint  string    `json:"fingerprint"`
}

// RebuildHook is notified after every build attempt.
type RebuildHook func(stats index.BuildStats, err error)

// Option customises an Engine.
type Option func(*Engine)

// WithOracle replaces the staleness oracle chosen from the config.
func WithOracle(o staleness.Oracle) Option {
	return func(e *Engine) { e.oracle = o }
}

// WithRebuildHook registers fn to observe build attempts.
func WithRebuildHook(fn RebuildHook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, fn) }
}

// WithLoader replaces the file loader.
func WithLoader(l index.TextLoader) Option {
	return func(e *Engine) { e.loader = l }
}

// Engine owns the current index snapshot. Readers take the published
// pointer and keep using it for as long as they need; rebuilds construct a
// new snapshot aside and swap the pointer. Concurrent rebuild requests share
// a single build.
type Engine struct {
	scanner *scanner.Scanner
	loader  index.TextLoader
	builder *index.Builder
	oracle  staleness.Oracle
	watcher *staleness.Watcher
	hooks   []RebuildHook

	current atomic.Pointer[index.Snapshot]
	version atomic.Uint64
	group   singleflight.Group

	// lifetime bounds every build; cancelling it interrupts an in-flight
	// rebuild on shutdown.
	lifetime context.Context
	cancel   context.CancelFunc
	logger   *slog.Logger
}

// NewEngine validates the corpus root and publishes an initial snapshot.
// The engine stops when ctx is cancelled or Close is called.
func NewEngine(ctx context.Context, cfg config.IndexConfig, opts ...Option) (*Engine, error) {
	sc, err := scanner.New(cfg.Root, cfg.Extensions)
	if err != nil {
		return nil, err
	}
	lifetime, cancel := context.WithCancel(ctx)
	e := &Engine{
		scanner:  sc,
		lifetime: lifetime,
		cancel:   cancel,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		l, err := loader.New(cfg.Encodings)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("configuring loader: %w", err)
		}
		e.loader = l
	}
	e.builder = index.NewBuilder(sc, e.loader, cfg.Workers)
	if e.oracle == nil {
		if cfg.Watch {
			e.watcher = staleness.NewWatcher(sc)
			e.watcher.Start(lifetime)
			e.oracle = e.watcher
		} else {
			e.oracle = staleness.NewPoller(sc)
		}
	}
	e.current.Store(index.Empty(sc.Root()))

	if _, err := e.Rebuild(ctx); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("initial build: %w", err)
	}
	return e, nil
}

// Root returns the absolute corpus root.
func (e *Engine) Root() string {
	return e.scanner.Root()
}

// Current returns the published snapshot. It never returns nil.
func (e *Engine) Current() *index.Snapshot {
	return e.current.Load()
}

// Rebuild runs a full build pass and publishes the result. A call made while
// another build is running waits for that build instead of starting its own.
func (e *Engine) Rebuild(ctx context.Context) (RebuildResult, error) {
	ch := e.group.DoChan(rebuildKey, func() (any, error) {
		return e.build()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return RebuildResult{}, res.Err
		}
		out := res.Val.(RebuildResult)
		out.Shared = res.Shared
		return out, nil
	case <-ctx.Done():
		return RebuildResult{}, fmt.Errorf("waiting for rebuild: %w", ctx.Err())
	}
}

func (e *Engine) build() (RebuildResult, error) {
	version := e.version.Add(1)
	snap, stats, err := e.builder.Build(e.lifetime, version)
	for _, hook := range e.hooks {
		hook(stats, err)
	}
	if err != nil {
		e.logger.Error("rebuild failed", "version", version, "error", err)
		return RebuildResult{}, err
	}
	e.current.Store(snap)
	return RebuildResult{
		Documents: snap.Len(),
		Skipped:   stats.Skipped,
		Version:   version,
		Duration:  stats.Duration,
	}, nil
}

// Refresh consults the staleness oracle and rebuilds when the published
// snapshot no longer matches the corpus. It returns the snapshot the caller
// should query.
func (e *Engine) Refresh(ctx context.Context) (*index.Snapshot, error) {
	snap := e.Current()
	stale, err := e.oracle.Stale(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("checking staleness: %w", err)
	}
	if !stale {
		return snap, nil
	}
	e.logger.Info("corpus changed, rebuilding", "version", snap.Version())
	if _, err := e.Rebuild(ctx); err != nil {
		if r, ok := e.oracle.(staleness.Rearmer); ok {
			r.MarkDirty()
		}
		return nil, fmt.Errorf("rebuilding stale index: %w", err)
	}
	return e.Current(), nil
}

// Status describes the published snapshot.
func (e *Engine) Status() Status {
	snap := e.Current()
	return Status{
		Root:         snap.Root(),
		Documents:    snap.Len(),
		Terms:        snap.TermCount(),
		AvgDocLength: snap.AvgDocLength(),
		Version:      snap.Version(),
		BuiltAt:      snap.BuiltAt(),
		Fingerprint:  snap.Fingerprint(),
	}
}

// Resolve maps a root-relative path, as found in search results, back to an
// existing file inside the root. Absolute paths, traversal out of the root
// and symlinks pointing outside it are rejected.
func (e *Engine) Resolve(rel string) (string, error) {
	rel = strings.ReplaceAll(strings.TrimSpace(rel), `\`, "/")
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", apperrors.ErrInvalidInput)
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %q is absolute", apperrors.ErrPathOutsideRoot, rel)
	}
	root := e.Root()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if !within(root, abs) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrPathOutsideRoot, rel)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %q", apperrors.ErrNotFound, rel)
		}
		return "", fmt.Errorf("resolving %q: %w", rel, err)
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidRoot, err)
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %q", apperrors.ErrPathOutsideRoot, rel)
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %q", apperrors.ErrNotFound, rel)
	}
	return abs, nil
}

// RelPath renders an indexed absolute path relative to the root with
// forward slashes.
func (e *Engine) RelPath(path string) string {
	return RelPath(e.Root(), path)
}

// RelPath renders path relative to root with forward slashes.
func RelPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Close cancels any in-flight rebuild and stops the watcher.
func (e *Engine) Close() error {
	e.cancel()
	if e.watcher != nil {
		return e.watcher.Close()
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
