// Package inotify is a wrapper around the Linux inotify API.
//
// An Inotify owns one inotify file descriptor. Watches are managed through
// Watches, events are read into a caller supplied buffer with
// ReadEventsBlocking or ReadEvents, or consumed one by one from an
// EventStream that waits for readiness through a Poller.
//
// The kernel writes variable length records. A read hands back the complete
// ones; if the buffer ends in the middle of a record, Events.Tail holds its
// first bytes and the caller carries them to the next read:
//
//	buf := make([]byte, 64*1024)
//	pending := 0
//	for {
//		evs, err := in.ReadEventsBlocking(buf, pending)
//		if err != nil {
//			return err
//		}
//		for evs.Next() {
//			handle(evs.Event())
//		}
//		pending = copy(buf, evs.Tail())
//	}
package inotify

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hawkingrei/notify/inotify/internal/unixsys"
	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed is returned by every operation on a closed instance.
	ErrClosed = errors.New("inotify: instance closed")
	// ErrWouldBlock is returned by ReadEvents when no events are queued.
	ErrWouldBlock = errors.New("inotify: no events available")
	// ErrBufferTooSmall is returned when the space left in the read buffer
	// can't hold the next record. Grow the buffer and read again; nothing
	// was lost.
	ErrBufferTooSmall = errors.New("inotify: buffer too small for next event")
)

// Syscalls is the kernel interface an Inotify is built on. Read must return
// the bare errno so EAGAIN, EINTR and EINVAL can be told apart.
type Syscalls interface {
	Init(flags int) (int, error)
	AddWatch(fd int, path string, mask uint32) (int, error)
	RmWatch(fd int, wd uint32) error
	Read(fd int, p []byte) (int, error)
	WaitReadable(fd int) error
	Close(fd int) error
}

type options struct {
	sys    Syscalls
	logger *logrus.Entry
	flags  int
}

// Option configures Init and NewFromFD.
type Option func(*options)

// WithLogger sets the entry the instance logs to.
func WithLogger(l *logrus.Entry) Option {
	return func(o *options) { o.logger = l }
}

// WithSyscalls replaces the system calls, mainly for tests.
func WithSyscalls(s Syscalls) Option {
	return func(o *options) { o.sys = s }
}

// WithFlags passes extra flags to inotify_init1. Close-on-exec and
// non-blocking mode are always set.
func WithFlags(flags int) Option {
	return func(o *options) { o.flags = flags }
}

var serials atomic.Uint64

// Inotify is an open inotify instance. It is closed by Close, or when it
// is garbage collected.
type Inotify struct {
	fd      int
	sys     Syscalls
	owner   *owner
	watches *registry
	logger  *logrus.Entry

	closed    atomic.Bool
	closeOnce sync.Once
}

// Init creates a new inotify instance.
func Init(opts ...Option) (*Inotify, error) {
	o := buildOptions(opts)
	fd, err := o.sys.Init(o.flags)
	if err != nil {
		return nil, err
	}
	return newInotify(fd, o), nil
}

// NewFromFD adopts an already open inotify file descriptor. The returned
// instance owns fd and closes it.
func NewFromFD(fd int, opts ...Option) *Inotify {
	return newInotify(fd, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := options{sys: unixsys.Unix{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.WithField("component", "inotify")
	}
	return o
}

func newInotify(fd int, o options) *Inotify {
	own := &owner{serial: serials.Add(1)}
	in := &Inotify{
		fd:      fd,
		sys:     o.sys,
		owner:   own,
		watches: newRegistry(own),
		logger:  o.logger.WithField("fd", fd),
	}
	runtime.SetFinalizer(in, (*Inotify).Close)
	return in
}

// Fd returns the inotify file descriptor, or -1 once closed.
func (in *Inotify) Fd() int {
	if in.isClosed() {
		return -1
	}
	return in.fd
}

// Watches returns the handle used to add and remove watches.
func (in *Inotify) Watches() Watches {
	return Watches{in: in}
}

// AddWatch is shorthand for in.Watches().Add.
func (in *Inotify) AddWatch(path string, mask WatchMask) (WatchDescriptor, error) {
	return in.Watches().Add(path, mask)
}

// RemoveWatch is shorthand for in.Watches().Remove.
func (in *Inotify) RemoveWatch(wd WatchDescriptor) error {
	return in.Watches().Remove(wd)
}

// ReadEventsBlocking waits until events are available and reads them into
// buf[pending:]. The first pending bytes of buf are the Tail of the previous
// read and are decoded together with the new data.
//
// A call already waiting is not woken by Close from another goroutine; use
// an EventStream when reading must stop on demand.
func (in *Inotify) ReadEventsBlocking(buf []byte, pending int) (*Events, error) {
	return in.read(buf, pending, true)
}

// ReadEvents is like ReadEventsBlocking but returns ErrWouldBlock instead
// of waiting when no events are queued.
func (in *Inotify) ReadEvents(buf []byte, pending int) (*Events, error) {
	return in.read(buf, pending, false)
}

func (in *Inotify) read(buf []byte, pending int, blocking bool) (*Events, error) {
	mode := "nonblocking"
	if blocking {
		mode = "blocking"
	}
	if in.isClosed() {
		return nil, ErrClosed
	}
	if pending < 0 || pending > len(buf) {
		return nil, fmt.Errorf("inotify: pending length %d outside buffer of %d bytes", pending, len(buf))
	}
	if len(buf)-pending < HeaderSize {
		metricReads.WithLabelValues(mode, "buffer_too_small").Inc()
		return nil, ErrBufferTooSmall
	}
	for {
		n, err := in.sys.Read(in.fd, buf[pending:])
		switch {
		case err == nil && n > 0:
			metricReads.WithLabelValues(mode, "ok").Inc()
			metricBytesRead.Add(float64(n))
			n += pending
			records, _ := Decode(buf, n)
			return &Events{in: in, records: records, buf: buf, n: n}, nil
		case err == nil:
			metricReads.WithLabelValues(mode, "eof").Inc()
			return nil, io.ErrUnexpectedEOF
		case errors.Is(err, unixsys.EINTR):
			continue
		case errors.Is(err, unixsys.EAGAIN):
			if !blocking {
				metricReads.WithLabelValues(mode, "would_block").Inc()
				return nil, ErrWouldBlock
			}
			if err := in.sys.WaitReadable(in.fd); err != nil {
				if in.isClosed() {
					return nil, ErrClosed
				}
				metricReads.WithLabelValues(mode, "error").Inc()
				return nil, err
			}
		case errors.Is(err, unixsys.EINVAL):
			metricReads.WithLabelValues(mode, "buffer_too_small").Inc()
			return nil, ErrBufferTooSmall
		case errors.Is(err, unixsys.EBADF) && in.isClosed():
			return nil, ErrClosed
		default:
			metricReads.WithLabelValues(mode, "error").Inc()
			return nil, os.NewSyscallError("read", err)
		}
	}
}

// Close releases the file descriptor. Only the first call does anything and
// only it can return an error. Descriptors issued by the instance stop
// resolving.
func (in *Inotify) Close() error {
	var err error
	in.closeOnce.Do(func() {
		in.closed.Store(true)
		runtime.SetFinalizer(in, nil)
		in.watches.clear()
		if err = in.sys.Close(in.fd); err != nil {
			in.logger.WithError(err).Error("Failed to close inotify instance")
			return
		}
		in.logger.Debug("Closed inotify instance")
	})
	return err
}

// Release gives up ownership of the file descriptor without closing it and
// returns it. The instance behaves as closed afterwards.
func (in *Inotify) Release() int {
	fd := -1
	in.closeOnce.Do(func() {
		in.closed.Store(true)
		runtime.SetFinalizer(in, nil)
		in.watches.clear()
		fd = in.fd
	})
	return fd
}

func (in *Inotify) isClosed() bool {
	return in.closed.Load()
}
