// Package scanner enumerates the eligible documents under a corpus root.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/errors"
)

// DefaultExtensions is the allow-list used when none is configured.
var DefaultExtensions = []string{".md", ".txt", ".html", ".htm"}

// Entry is one eligible file found during a scan.
type Entry struct {
	Path    string
	ModTime time.Time
}

// Scanner walks a fixed root directory.
type Scanner struct {
	root   string
	exts   map[string]struct{}
	logger *slog.Logger
}

// New validates root and returns a Scanner for it. Extensions are matched
// case-insensitively; a missing leading dot is added.
func New(root string, extensions []string) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", apperrors.ErrInvalidRoot, root, err)
	}
	if err := checkRoot(abs); err != nil {
		return nil, err
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Scanner{
		root:   abs,
		exts:   exts,
		logger: slog.Default().With("component", "scanner"),
	}, nil
}

// Root returns the absolute, cleaned corpus root.
func (s *Scanner) Root() string {
	return s.root
}

// Eligible reports whether path carries an allowed extension.
func (s *Scanner) Eligible(path string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Walk calls fn for every eligible file, lazily, in directory order. Errors
// on individual entries are skipped; only an inaccessible root, a cancelled
// context or an error returned by fn stop the walk. Symlinks to regular
// files inside the root are listed under the link's path with the target's
// modification time; directory symlinks are not descended.
func (s *Scanner) Walk(ctx context.Context, fn func(Entry) error) error {
	if err := checkRoot(s.root); err != nil {
		return err
	}
	realRoot, err := filepath.EvalSymlinks(s.root)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidRoot, err)
	}
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == s.root {
				return fmt.Errorf("%w: %v", apperrors.ErrInvalidRoot, err)
			}
			s.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.Eligible(path) {
			return nil
		}
		var info fs.FileInfo
		switch {
		case d.Type().IsRegular():
			info, err = d.Info()
		case d.Type()&fs.ModeSymlink != 0:
			info, err = followLink(realRoot, path)
		default:
			return nil
		}
		if err != nil {
			s.logger.Debug("skipping entry", "path", path, "error", err)
			return nil
		}
		return fn(Entry{Path: path, ModTime: info.ModTime()})
	})
}

// followLink stats the target of a symlinked file, refusing targets that
// are not regular files or that leave realRoot.
func followLink(realRoot, path string) (fs.FileInfo, error) {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(realRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("symlink target %s is outside the root", target)
	}
	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("symlink target %s is not a regular file", target)
	}
	return info, nil
}

// Collect runs Walk and returns the entries sorted by path.
func (s *Scanner) Collect(ctx context.Context) ([]Entry, error) {
	entries := make([]Entry, 0, 64)
	err := s.Walk(ctx, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", apperrors.ErrInvalidRoot, root)
	}
	return nil
}
