package inotify

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/hawkingrei/notify/inotify/internal/unixsys"
	"github.com/twmb/murmur3"
)

var (
	// ErrWatchNotFound is returned when removing a watch that was already
	// removed, or that the session never created.
	ErrWatchNotFound = errors.New("inotify: watch not found")
	// ErrForeignWatch is returned when a descriptor issued by another
	// session is handed to this one.
	ErrForeignWatch = errors.New("inotify: watch descriptor belongs to another instance")
)

// owner identifies a session. Descriptors point at it rather than at the
// session itself, so that holding a descriptor does not keep a session
// from being collected.
type owner struct {
	serial uint64
}

// WatchDescriptor identifies a watch within the session that created it.
// Descriptors are comparable: two descriptors are equal only if they come
// from the same session and the same watch, even when the kernel hands out
// the same integer twice.
type WatchDescriptor struct {
	id    int32
	gen   uint32
	owner *owner
}

// ID returns the integer the kernel assigned to the watch.
func (wd WatchDescriptor) ID() int32 {
	return wd.id
}

// Compare orders descriptors by session, then kernel id, then generation.
func (wd WatchDescriptor) Compare(other WatchDescriptor) int {
	return cmp.Or(
		cmp.Compare(wd.serial(), other.serial()),
		cmp.Compare(wd.id, other.id),
		cmp.Compare(wd.gen, other.gen),
	)
}

// Hash mixes the owning session into the kernel id, for use as a key in
// sharded or probabilistic structures. Equal descriptors hash equally.
func (wd WatchDescriptor) Hash() uint64 {
	var b [16]byte
	binary.LittleEndian.PutUint64(b[0:], wd.serial())
	binary.LittleEndian.PutUint32(b[8:], uint32(wd.id))
	binary.LittleEndian.PutUint32(b[12:], wd.gen)
	return murmur3.Sum64(b[:])
}

func (wd WatchDescriptor) String() string {
	return fmt.Sprintf("wd(%d:%d.%d)", wd.serial(), wd.id, wd.gen)
}

func (wd WatchDescriptor) serial() uint64 {
	if wd.owner == nil {
		return 0
	}
	return wd.owner.serial
}

// Watch is what the registry knows about a live watch.
type Watch struct {
	Descriptor WatchDescriptor
	Path       string
	Mask       WatchMask
}

// registry tracks which kernel ids are alive. Generations survive removal,
// so a descriptor that was invalidated stays invalid when the kernel later
// reuses its integer.
//
// Removing a watch queues an IGNORED record the reader may not have seen
// yet. retired holds, per id, the generations still owed one; records for
// the id belong to the oldest of them until its IGNORED arrives, whatever
// watch holds the id by then.
type registry struct {
	mu      sync.Mutex
	owner   *owner
	entries map[int32]*Watch
	gens    map[int32]uint32
	retired map[int32][]uint32
}

func newRegistry(o *owner) *registry {
	return &registry{
		owner:   o,
		entries: make(map[int32]*Watch),
		gens:    make(map[int32]uint32),
		retired: make(map[int32][]uint32),
	}
}

// added records the id the kernel returned for path. The kernel returns the
// id of the existing watch when a path is added twice; that keeps the
// descriptor.
func (r *registry) added(id int32, path string, mask WatchMask) WatchDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.entries[id]; ok {
		if mask&WatchMaskAdd != 0 {
			w.Mask |= mask &^ WatchMaskAdd
		} else {
			w.Mask = mask
		}
		return w.Descriptor
	}
	r.gens[id]++
	wd := WatchDescriptor{id: id, gen: r.gens[id], owner: r.owner}
	r.entries[id] = &Watch{Descriptor: wd, Path: path, Mask: mask &^ WatchMaskAdd}
	return wd
}

// take removes the entry for wd and reports whether it was alive.
func (r *registry) take(wd WatchDescriptor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.entries[wd.id]
	if !ok || w.Descriptor != wd {
		return false
	}
	delete(r.entries, wd.id)
	r.retired[wd.id] = append(r.retired[wd.id], wd.gen)
	return true
}

// unretire drops the IGNORED record take started expecting for wd, for
// removals the kernel refused.
func (r *registry) unretire(wd WatchDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.retired[wd.id]
	for i, gen := range q {
		if gen == wd.gen {
			r.retired[wd.id] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	if len(r.retired[wd.id]) == 0 {
		delete(r.retired, wd.id)
	}
}

// ignored handles an IGNORED record for id and returns the descriptor it
// belongs to. A record owed to a removed watch settles that debt; any other
// means the kernel dropped the live watch on its own.
func (r *registry) ignored(id int32) WatchDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q := r.retired[id]; len(q) > 0 {
		if len(q) == 1 {
			delete(r.retired, id)
		} else {
			r.retired[id] = q[1:]
		}
		return WatchDescriptor{id: id, gen: q[0], owner: r.owner}
	}
	delete(r.entries, id)
	return WatchDescriptor{id: id, gen: r.gens[id], owner: r.owner}
}

func (r *registry) resolve(id int32) (Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.entries[id]
	if !ok {
		return Watch{}, false
	}
	return *w, true
}

func (r *registry) lookup(wd WatchDescriptor) (Watch, bool) {
	w, ok := r.resolve(wd.id)
	if !ok || w.Descriptor != wd {
		return Watch{}, false
	}
	return w, true
}

// descriptor returns the descriptor a record for id belongs to: the oldest
// removed watch whose IGNORED is still due, else the most recent watch the
// kernel gave id to.
func (r *registry) descriptor(id int32) WatchDescriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q := r.retired[id]; len(q) > 0 {
		return WatchDescriptor{id: id, gen: q[0], owner: r.owner}
	}
	return WatchDescriptor{id: id, gen: r.gens[id], owner: r.owner}
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *registry) list() []Watch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Watch, 0, len(r.entries))
	for _, w := range r.entries {
		out = append(out, *w)
	}
	return out
}

func (r *registry) clear() {
	r.mu.Lock()
	clear(r.entries)
	clear(r.retired)
	r.mu.Unlock()
}

// Watches manages the watches of one session. It is a cheap handle; copies
// share the session.
type Watches struct {
	in *Inotify
}

// Add starts watching path for the events in mask. Adding a path that is
// already watched returns the existing descriptor. Kernel rejections are
// returned as *os.PathError wrapping the errno (ENOENT, EACCES, EINVAL,
// ENOSPC, ...).
func (w Watches) Add(path string, mask WatchMask) (WatchDescriptor, error) {
	in := w.in
	if in.isClosed() {
		return WatchDescriptor{}, ErrClosed
	}
	id, err := in.sys.AddWatch(in.fd, path, uint32(mask))
	if err != nil {
		metricWatchOperations.WithLabelValues("add", "error").Inc()
		if errors.Is(err, unixsys.ENOSPC) {
			in.logger.WithError(err).Warn("Reached the maximum number of inotify watches, see fs.inotify.max_user_watches")
		}
		return WatchDescriptor{}, err
	}
	wd := in.watches.added(int32(id), path, mask)
	metricWatchOperations.WithLabelValues("add", "ok").Inc()
	in.logger.WithField("path", path).WithField("wd", id).Debugf("Added watch for %v", mask)
	return wd, nil
}

// Remove stops the watch. The descriptor is invalid afterwards whatever the
// kernel answers. Removing an unknown or already removed watch returns
// ErrWatchNotFound without asking the kernel.
func (w Watches) Remove(wd WatchDescriptor) error {
	in := w.in
	if wd.owner != in.owner {
		return ErrForeignWatch
	}
	if in.isClosed() {
		return ErrClosed
	}
	if !in.watches.take(wd) {
		metricWatchOperations.WithLabelValues("remove", "not_found").Inc()
		return fmt.Errorf("%w: %v", ErrWatchNotFound, wd)
	}
	if err := in.sys.RmWatch(in.fd, uint32(wd.id)); err != nil {
		metricWatchOperations.WithLabelValues("remove", "error").Inc()
		if errors.Is(err, unixsys.EINVAL) {
			// The kernel dropped it already, e.g. the file was deleted
			// and the IGNORED record hasn't been read yet.
			return fmt.Errorf("%w: %v", ErrWatchNotFound, err)
		}
		in.watches.unretire(wd)
		return err
	}
	metricWatchOperations.WithLabelValues("remove", "ok").Inc()
	in.logger.WithField("wd", wd.id).Debug("Removed watch")
	return nil
}

// Resolve returns the live watch the kernel id belongs to.
func (w Watches) Resolve(id int32) (Watch, bool) {
	return w.in.watches.resolve(id)
}

// Lookup returns the watch wd refers to, if it is still alive. It reports
// false for descriptors of other sessions and of closed sessions.
func (w Watches) Lookup(wd WatchDescriptor) (Watch, bool) {
	if wd.owner != w.in.owner {
		return Watch{}, false
	}
	return w.in.watches.lookup(wd)
}

// List returns the live watches in no particular order.
func (w Watches) List() []Watch {
	return w.in.watches.list()
}

// Len returns the number of live watches.
func (w Watches) Len() int {
	return w.in.watches.len()
}
