package main

import (
	"path/filepath"

	"github.com/hawkingrei/notify/diskutil"
	"github.com/hawkingrei/notify/inotify"
	"github.com/sirupsen/logrus"
)

// watcher owns the watches of the command line roots and remembers the
// path of every watch, so events can be reported by path even after the
// kernel dropped the watch.
type watcher struct {
	watches   inotify.Watches
	mask      inotify.WatchMask
	recursive bool
	labels    *relabel
	paths     map[inotify.WatchDescriptor]string
	logger    *logrus.Entry
}

func newWatcher(watches inotify.Watches, mask inotify.WatchMask, recursive bool, labels *relabel) *watcher {
	if recursive {
		mask |= inotify.WatchCreate | inotify.WatchMovedTo
	}
	return &watcher{
		watches:   watches,
		mask:      mask,
		recursive: recursive,
		labels:    labels,
		paths:     make(map[inotify.WatchDescriptor]string),
		logger:    logrus.WithField("component", "watcher"),
	}
}

// addRoot watches root and, when recursive, every directory below it.
// Failing to watch root is an error, failing to watch a subdirectory is
// only logged.
func (w *watcher) addRoot(root string) error {
	tree := diskutil.NewTree(root)
	dirs := []string{tree.Root()}
	if w.recursive {
		var err error
		if dirs, err = tree.Dirs(); err != nil {
			return err
		}
	}
	for _, dir := range dirs {
		if err := w.add(dir); err != nil {
			if dir == tree.Root() {
				return err
			}
			w.logger.WithError(err).WithField("path", dir).Warn("Failed to watch directory")
		}
	}
	return nil
}

func (w *watcher) add(path string) error {
	wd, err := w.watches.Add(path, w.mask)
	if err != nil {
		return err
	}
	w.paths[wd] = path
	return nil
}

// handle turns ev into a record. Directories created or moved below a
// recursive root are watched as they appear.
func (w *watcher) handle(ev inotify.Event) (record, bool) {
	if ev.Mask.Has(inotify.QOverflow) {
		return record{}, false
	}
	dir, ok := w.paths[ev.WD]
	if !ok {
		w.logger.WithField("wd", ev.WD).Debug("Event for unknown watch")
		return record{}, false
	}
	path := dir
	if ev.Name != "" {
		path = filepath.Join(dir, ev.Name)
	}
	if ev.Mask.Has(inotify.Ignored) {
		delete(w.paths, ev.WD)
	}
	if w.recursive && ev.Mask.Has(inotify.IsDir) && (ev.Mask.Has(inotify.Create) || ev.Mask.Has(inotify.MovedTo)) {
		if err := w.addRoot(path); err != nil {
			w.logger.WithError(err).WithField("path", path).Warn("Failed to follow new directory")
		}
	}

	rec := record{path: path, label: w.labels.rel(path), mask: ev.Mask}
	w.logger.WithField("path", rec.label).Debug(ev.Mask)
	return rec, true
}
