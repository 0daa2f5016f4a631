package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbox/pkg/errors"
)

func makeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestCollect_FiltersByExtension(t *testing.T) {
	root := makeTree(t, map[string]string{
		"a.md":           "a",
		"b.TXT":          "b",
		"sub/c.html":     "c",
		"sub/deep/d.htm": "d",
		"image.png":      "x",
		"sub/script.js":  "x",
		"noext":          "x",
	})
	s, err := New(root, nil)
	require.NoError(t, err)

	entries, err := s.Collect(context.Background())
	require.NoError(t, err)

	var rels []string
	for _, e := range entries {
		rel, err := filepath.Rel(s.Root(), e.Path)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
		assert.True(t, filepath.IsAbs(e.Path))
		assert.False(t, e.ModTime.IsZero())
	}
	assert.Equal(t, []string{"a.md", "b.TXT", "sub/c.html", "sub/deep/d.htm"}, rels)
}

func TestNew_CustomExtensions(t *testing.T) {
	root := makeTree(t, map[string]string{"a.md": "a", "b.rst": "b"})
	s, err := New(root, []string{"rst"})
	require.NoError(t, err)

	entries, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.rst", filepath.Base(entries[0].Path))
}

func TestNew_InvalidRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidRoot)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(file, nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidRoot)
}

func TestWalk_RootRemovedAfterConstruction(t *testing.T) {
	root := makeTree(t, map[string]string{"a.md": "a"})
	s, err := New(root, nil)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(root))

	_, err = s.Collect(context.Background())
	require.ErrorIs(t, err, apperrors.ErrInvalidRoot)
}

func TestWalk_Cancelled(t *testing.T) {
	root := makeTree(t, map[string]string{"a.md": "a", "b.md": "b"})
	s, err := New(root, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Collect(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCollect_FollowsFileSymlinksInsideRoot(t *testing.T) {
	root := makeTree(t, map[string]string{
		"a.md":       "a",
		"docs/b.txt": "b",
	})
	outside := makeTree(t, map[string]string{"secret.md": "s"})
	links := map[string]string{
		"link.md":      filepath.Join(root, "a.md"),
		"docs/rel.txt": "b.txt",
		"escape.md":    filepath.Join(outside, "secret.md"),
		"dangling.md":  filepath.Join(root, "missing.md"),
		"dirlink.md":   filepath.Join(root, "docs"),
		"alldocs":      filepath.Join(root, "docs"),
	}
	for name, target := range links {
		if err := os.Symlink(target, filepath.Join(root, filepath.FromSlash(name))); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}
	}
	later := time.Now().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(filepath.Join(root, "a.md"), later, later))

	s, err := New(root, nil)
	require.NoError(t, err)
	entries, err := s.Collect(context.Background())
	require.NoError(t, err)

	var rels []string
	mtimes := map[string]time.Time{}
	for _, e := range entries {
		rel, err := filepath.Rel(s.Root(), e.Path)
		require.NoError(t, err)
		rels = append(rels, filepath.ToSlash(rel))
		mtimes[filepath.ToSlash(rel)] = e.ModTime
	}
	assert.Equal(t, []string{"a.md", "docs/b.txt", "docs/rel.txt", "link.md"}, rels)
	assert.True(t, mtimes["link.md"].Equal(later), "a link reports its target's modification time")
}
