package main

import (
	"context"
	"sort"
	"time"

	"github.com/hawkingrei/notify/diskutil"
	"github.com/hawkingrei/notify/inotify"
	"github.com/sirupsen/logrus"
)

// record is an event resolved to the path it happened on.
type record struct {
	path  string
	label string
	mask  inotify.EventMask
}

// kind names the operation of the record, or its control bits when it has
// none (IGNORED, UNMOUNT).
func (r record) kind() string {
	p, err := r.mask.Parse()
	if err != nil || p.Kind == 0 {
		return (r.mask &^ inotify.IsDir).String()
	}
	return p.Kind.String()
}

func (r record) isWrite() bool {
	return r.mask&(inotify.Create|inotify.Modify|inotify.CloseWrite|inotify.MovedTo) != 0
}

type pathCount struct {
	path   string
	label  string
	events int
	writes int
	last   string
}

// pathSummary is one line of a summary.
type pathSummary struct {
	Label      string
	Events     int
	Writes     int
	Last       string
	LastAccess time.Time
}

// tally counts records per path and per kind and logs the busiest paths
// every interval, followed by the least recently accessed files nothing
// happened to. Counters restart after each summary.
type tally struct {
	interval time.Duration
	top      int
	cold     int
	labels   *relabel
	paths    map[string]*pathCount
	kinds    map[string]int
	events   int
	writes   int
	logger   *logrus.Entry
}

func newTally(interval time.Duration, top, cold int, labels *relabel) *tally {
	return &tally{
		interval: interval,
		top:      top,
		cold:     cold,
		labels:   labels,
		paths:    make(map[string]*pathCount),
		kinds:    make(map[string]int),
		logger:   logrus.WithField("component", "tally"),
	}
}

// Start consumes records until ctx is done or records is closed, then logs
// a last summary.
func (t *tally) Start(ctx context.Context, records <-chan record) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case rec, ok := <-records:
			if !ok {
				t.report()
				return
			}
			t.add(rec)
		case <-ticker.C:
			t.report()
		case <-ctx.Done():
			t.report()
			return
		}
	}
}

func (t *tally) add(rec record) {
	kind := rec.kind()
	metricEvents.WithLabelValues(kind).Inc()
	t.events++
	t.kinds[kind]++

	pc, ok := t.paths[rec.path]
	if !ok {
		pc = &pathCount{path: rec.path, label: rec.label}
		t.paths[rec.path] = pc
	}
	pc.events++
	pc.last = kind
	if rec.isWrite() {
		t.writes++
		pc.writes++
	}
}

// summary returns the busiest paths, most events first.
func (t *tally) summary() []pathSummary {
	counts := make([]*pathCount, 0, len(t.paths))
	for _, pc := range t.paths {
		counts = append(counts, pc)
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].events != counts[j].events {
			return counts[i].events > counts[j].events
		}
		return counts[i].label < counts[j].label
	})
	if len(counts) > t.top {
		counts = counts[:t.top]
	}

	out := make([]pathSummary, 0, len(counts))
	for _, pc := range counts {
		out = append(out, pathSummary{
			Label:      pc.label,
			Events:     pc.events,
			Writes:     pc.writes,
			Last:       pc.last,
			LastAccess: diskutil.GetATime(pc.path, time.Time{}),
		})
	}
	return out
}

// coldFiles lists the files under the watched roots that saw no events,
// least recently accessed first.
func (t *tally) coldFiles() []diskutil.EntryInfo {
	if t.cold <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var files []diskutil.EntryInfo
	for _, tree := range t.labels.trees {
		for _, entry := range tree.GetEntries() {
			if _, busy := t.paths[entry.Path]; busy || seen[entry.Path] {
				continue
			}
			seen[entry.Path] = true
			files = append(files, entry)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].LastAccess.Before(files[j].LastAccess)
	})
	if len(files) > t.cold {
		files = files[:t.cold]
	}
	return files
}

func (t *tally) report() {
	if t.events == 0 {
		return
	}
	t.logger.WithField("events", t.events).WithField("writes", t.writes).WithField("kinds", t.kinds).Info("Summary")
	for _, s := range t.summary() {
		l := t.logger.WithField("path", s.Label).WithField("events", s.Events).WithField("writes", s.Writes).WithField("last", s.Last)
		if !s.LastAccess.IsZero() {
			l = l.WithField("atime", s.LastAccess.Format(time.RFC3339))
		}
		l.Info("Busy path")
	}
	for _, entry := range t.coldFiles() {
		t.logger.WithField("path", t.labels.rel(entry.Path)).WithField("atime", entry.LastAccess.Format(time.RFC3339)).Info("Cold file")
	}
	t.reset()
}

func (t *tally) reset() {
	clear(t.paths)
	t.kinds = make(map[string]int)
	t.events = 0
	t.writes = 0
}
