package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/scanner"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/tokenizer"
)

// TextLoader turns a file path into plain text.
type TextLoader interface {
	Load(path string) (string, error)
}

// BuildStats summarises one build pass.
type BuildStats struct {
	Scanned  int
	Indexed  int
	Skipped  int
	Terms    int
	Duration time.Duration
}

// Builder performs full build passes over one corpus root.
type Builder struct {
	scanner *scanner.Scanner
	loader  TextLoader
	workers int
	logger  *slog.Logger
}

func NewBuilder(sc *scanner.Scanner, loader TextLoader, workers int) *Builder {
	if workers <= 0 {
		workers = 1
	}
	return &Builder{
		scanner: sc,
		loader:  loader,
		workers: workers,
		logger:  slog.Default().With("component", "index-builder"),
	}
}

type loaded struct {
	text  string
	terms map[string]int
	size  int
	ok    bool
}

// Build scans the corpus, loads and tokenises every eligible file and
// returns a new snapshot tagged with version. Files that fail to load are
// left out. Only an unreadable root or a cancelled ctx fail the build.
func (b *Builder) Build(ctx context.Context, version uint64) (*Snapshot, BuildStats, error) {
	start := time.Now()
	entries, err := b.scanner.Collect(ctx)
	if err != nil {
		return nil, BuildStats{}, fmt.Errorf("scanning corpus: %w", err)
	}

	results := make([]loaded, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, entry := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text, err := b.loader.Load(entry.Path)
			if err != nil {
				b.logger.Debug("skipping document", "path", entry.Path, "error", err)
				return nil
			}
			tokens := tokenizer.Tokenize(text)
			results[i] = loaded{
				text:  text,
				terms: tokenizer.Frequencies(tokens),
				size:  len(tokens),
				ok:    true,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, BuildStats{}, fmt.Errorf("loading documents: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, BuildStats{}, fmt.Errorf("loading documents: %w", err)
	}

	docs := make([]Document, 0, len(entries))
	termFreqs := make([]map[string]int, 0, len(entries))
	for i, entry := range entries {
		r := results[i]
		if !r.ok {
			continue
		}
		docs = append(docs, Document{
			ID:      len(docs),
			Path:    entry.Path,
			Title:   filepath.Base(entry.Path),
			Text:    r.text,
			Length:  r.size,
			ModTime: entry.ModTime,
		})
		termFreqs = append(termFreqs, r.terms)
	}

	snap := newSnapshot(b.scanner.Root(), version, time.Now(), docs, termFreqs)
	// Skipped files stay in the file set so that an unchanged unreadable
	// file does not make every staleness check report a change.
	for i, entry := range entries {
		if !results[i].ok {
			snap.files[entry.Path] = entry.ModTime
		}
	}
	stats := BuildStats{
		Scanned:  len(entries),
		Indexed:  snap.Len(),
		Skipped:  len(entries) - snap.Len(),
		Terms:    snap.TermCount(),
		Duration: time.Since(start),
	}
	b.logger.Info("index built",
		"version", version,
		"docs", stats.Indexed,
		"skipped", stats.Skipped,
		"terms", stats.Terms,
		"avg_doc_len", snap.AvgDocLength(),
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return snap, stats, nil
}

// Assemble builds a snapshot directly from in-memory documents, tokenising
// their Text. IDs are reassigned in slice order.
func Assemble(root string, version uint64, builtAt time.Time, docs []Document) *Snapshot {
	out := make([]Document, len(docs))
	termFreqs := make([]map[string]int, len(docs))
	for i, doc := range docs {
		tokens := tokenizer.Tokenize(doc.Text)
		doc.ID = i
		doc.Length = len(tokens)
		if doc.Title == "" {
			doc.Title = filepath.Base(doc.Path)
		}
		out[i] = doc
		termFreqs[i] = tokenizer.Frequencies(tokens)
	}
	return newSnapshot(root, version, builtAt, out, termFreqs)
}
