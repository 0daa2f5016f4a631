package staleness

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/scanner"
)

// Oracle reports whether snap no longer matches the corpus.
type Oracle interface {
	Stale(ctx context.Context, snap *index.Snapshot) (bool, error)
}

// Rearmer is implemented by oracles that consume change notifications.
// MarkDirty restores a pending change after a rebuild it triggered failed,
// so the next query retries instead of serving the old snapshot.
type Rearmer interface {
	MarkDirty()
}

var errChanged = errors.New("corpus changed")

// Poller compares a fresh scan against the snapshot's file set.
type Poller struct {
	scanner *scanner.Scanner
}

func NewPoller(sc *scanner.Scanner) *Poller {
	return &Poller{scanner: sc}
}

// Stale walks the corpus and stops at the first added or modified file;
// removals are detected by counting matches.
func (p *Poller) Stale(ctx context.Context, snap *index.Snapshot) (bool, error) {
	known := snap.Files()
	matched := 0
	err := p.scanner.Walk(ctx, func(e scanner.Entry) error {
		mtime, ok := known[e.Path]
		if !ok || !mtime.Equal(e.ModTime) {
			return errChanged
		}
		matched++
		return nil
	})
	if errors.Is(err, errChanged) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("polling corpus: %w", err)
	}
	return matched != len(known), nil
}
