package staleness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchbox/internal/indexer/scanner"
)

// Watcher is an Oracle driven by file system notifications. A relevant
// event marks the corpus dirty; the next Stale call clears the mark and
// confirms with a Poller scan. Without pending events Stale answers false
// without touching the disk.
type Watcher struct {
	scanner *scanner.Scanner
	poller  *Poller
	fsw     *fsnotify.Watcher
	dirty   atomic.Bool
	events  atomic.Uint64
	started atomic.Bool
	logger  *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWatcher registers every directory under the scanner root. When fsnotify
// cannot be initialised the returned Watcher degrades to polling on every
// call.
func NewWatcher(sc *scanner.Scanner) *Watcher {
	w := &Watcher{
		scanner: sc,
		poller:  NewPoller(sc),
		logger:  slog.Default().With("component", "staleness-watcher"),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	// Nothing has been confirmed against the disk yet.
	w.dirty.Store(true)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		close(w.done)
		return w
	}
	if err := w.addRecursive(fsw, sc.Root()); err != nil {
		w.logger.Warn("watching corpus failed, falling back to polling", "error", err)
		_ = fsw.Close()
		close(w.done)
		return w
	}
	w.fsw = fsw
	return w
}

// Start consumes events until ctx is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	if w.fsw == nil || !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.loop(ctx)
	w.logger.Info("watching corpus", "root", w.scanner.Root())
}

// Watching reports whether fsnotify events are being received.
func (w *Watcher) Watching() bool {
	return w.fsw != nil
}

// Dirty reports whether an unconfirmed change is pending.
func (w *Watcher) Dirty() bool {
	return w.fsw == nil || w.dirty.Load()
}

// Events returns the number of relevant events observed so far.
func (w *Watcher) Events() uint64 {
	return w.events.Load()
}

func (w *Watcher) Stale(ctx context.Context, snap *index.Snapshot) (bool, error) {
	if w.fsw == nil {
		return w.poller.Stale(ctx, snap)
	}
	if !w.dirty.Swap(false) {
		return false, nil
	}
	stale, err := w.poller.Stale(ctx, snap)
	if err != nil {
		w.dirty.Store(true)
		return false, err
	}
	return stale, nil
}

// MarkDirty forces the next Stale call to confirm against the disk.
func (w *Watcher) MarkDirty() {
	w.dirty.Store(true)
}

// Close stops the event loop and releases the fsnotify watcher.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			err = w.fsw.Close()
			if w.started.CompareAndSwap(false, true) {
				close(w.done)
			}
		}
	})
	<-w.done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.markDirty()
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(w.fsw, event.Name); err != nil {
				w.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
			}
			// Files may have landed before the watch was registered.
			w.markDirty()
			return
		}
	}
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return
	}
	// Removed or renamed directories carry no extension; treat them as
	// relevant since eligible files may have gone with them.
	if filepath.Ext(event.Name) != "" && !w.scanner.Eligible(event.Name) {
		return
	}
	w.logger.Debug("corpus event", "op", event.Op.String(), "path", event.Name)
	w.markDirty()
}

func (w *Watcher) markDirty() {
	w.events.Add(1)
	w.dirty.Store(true)
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
