package diskutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTreeDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "c"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "f"), nil, 0o644))

	dirs, err := NewTree(root).Dirs()
	require.NoError(t, err)
	require.Equal(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "c"),
	}, dirs)
}

func TestTreeDirsOfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	dirs, err := NewTree(path).Dirs()
	require.NoError(t, err)
	require.Equal(t, []string{path}, dirs)
}

func TestTreeDirsMissingRoot(t *testing.T) {
	_, err := NewTree(filepath.Join(t.TempDir(), "missing")).Dirs()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTreeRel(t *testing.T) {
	tree := NewTree("/data/watch/")
	require.Equal(t, "/data/watch", tree.Root())
	require.Equal(t, "a/b", tree.Rel("/data/watch/a/b"))
	require.Equal(t, ".", tree.Rel("/data/watch"))
	require.True(t, tree.Contains("/data/watch/a"))
	require.True(t, tree.Contains("/data/watch"))
	require.False(t, tree.Contains("/data/watcher"))

	top := NewTree("/")
	require.True(t, top.Contains("/etc"))
	require.Equal(t, "etc/hosts", top.Rel("/etc/hosts"))
}

func TestTreeGetEntries(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	file := filepath.Join(root, "sub", "f")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	at := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(file, at, at))

	entries := NewTree(root).GetEntries()
	require.Len(t, entries, 1)
	require.Equal(t, file, entries[0].Path)
	require.True(t, at.Equal(entries[0].LastAccess))
}

func TestGetATimeFallsBack(t *testing.T) {
	def := time.Unix(42, 0)
	require.Equal(t, def, GetATime(filepath.Join(t.TempDir(), "missing"), def))
}
