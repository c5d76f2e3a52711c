package diskutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Tree is a directory hierarchy rooted at a watched path.
type Tree struct {
	root   string
	logger *logrus.Entry
}

// NewTree returns a Tree for root.
func NewTree(root string) *Tree {
	root = filepath.Clean(root)
	return &Tree{
		root:   root,
		logger: logrus.WithField("root", root),
	}
}

// Root returns the cleaned root directory.
func (t *Tree) Root() string {
	return t.root
}

func (t *Tree) prefix() string {
	if strings.HasSuffix(t.root, string(os.PathSeparator)) {
		return t.root
	}
	return t.root + string(os.PathSeparator)
}

// Contains reports whether path is the root or lies below it.
func (t *Tree) Contains(path string) bool {
	return path == t.root || strings.HasPrefix(path, t.prefix())
}

// Rel converts a path on disk to a path relative to the root, assuming the
// path is actually under Root().
func (t *Tree) Rel(path string) string {
	if path == t.root {
		return "."
	}
	return strings.TrimPrefix(path, t.prefix())
}

// EntryInfo are returned when listing files of the tree
type EntryInfo struct {
	Path       string
	LastAccess time.Time
}

// Dirs walks the tree and returns the root followed by every directory
// below it, parents before children.
func (t *Tree) Dirs() ([]string, error) {
	info, err := os.Stat(t.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{t.root}, nil
	}
	var dirs []string
	err = filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == t.root {
				return err
			}
			// Vanished or unreadable subdirectories are skipped, the
			// rest of the tree is still worth watching.
			t.logger.WithError(err).Warn("error walking some directories")
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dirs, nil
}

// GetEntries walks the tree and returns all regular files that exist.
func (t *Tree) GetEntries() []EntryInfo {
	entries := []EntryInfo{}
	// note we swallow errors because we just need to know what files exist
	_ = filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			t.logger.WithError(err).Error("error getting some entries")
			return nil
		}
		if d.Type().IsRegular() {
			entries = append(entries, EntryInfo{
				Path:       path,
				LastAccess: GetATime(path, time.Now()),
			})
		}
		return nil
	})
	return entries
}
