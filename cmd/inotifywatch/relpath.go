package main

import (
	"path/filepath"
	"sort"

	"github.com/hawkingrei/notify/diskutil"
)

// relabel shortens event paths to the name of the root they were found
// under followed by the path below it.
type relabel struct {
	trees []*diskutil.Tree
}

func newRelabel(roots []string) *relabel {
	trees := make([]*diskutil.Tree, len(roots))
	for i, root := range roots {
		trees[i] = diskutil.NewTree(root)
	}
	// Nested roots: the innermost one wins.
	sort.Slice(trees, func(i, j int) bool {
		return len(trees[i].Root()) > len(trees[j].Root())
	})
	return &relabel{trees: trees}
}

func (r *relabel) rel(path string) string {
	for _, tree := range r.trees {
		if !tree.Contains(path) {
			continue
		}
		return filepath.Join(filepath.Base(tree.Root()), tree.Rel(path))
	}
	return path
}
