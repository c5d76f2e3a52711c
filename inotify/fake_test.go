package inotify

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"

	"github.com/hawkingrei/notify/inotify/internal/unixsys"
)

var errIO = errors.New("input/output error")

type chunk struct {
	b   []byte
	raw bool
}

// fakeSys is an in-memory kernel. Queued records are returned whole, like
// the kernel does; raw chunks are returned byte-wise so reads can end in the
// middle of a record.
type fakeSys struct {
	mu       sync.Mutex
	cond     *sync.Cond
	fd       int
	closed   bool
	closes   int
	closeErr error
	rmErr    error
	nextWD   int
	watches  map[string]int
	missing  map[string]bool
	chunks   []chunk
	readErrs []error
	reads    int
}

func newFakeSys() *fakeSys {
	f := &fakeSys{
		fd:      7,
		nextWD:  1,
		watches: make(map[string]int),
		missing: make(map[string]bool),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *fakeSys) Init(int) (int, error) {
	return f.fd, nil
}

func (f *fakeSys) AddWatch(fd int, path string, mask uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing[path] {
		return -1, &os.PathError{Op: "inotify_add_watch", Path: path, Err: unixsys.ENOENT}
	}
	if mask == 0 {
		return -1, &os.PathError{Op: "inotify_add_watch", Path: path, Err: unixsys.EINVAL}
	}
	if wd, ok := f.watches[path]; ok {
		return wd, nil
	}
	wd := f.nextWD
	f.nextWD++
	f.watches[path] = wd
	return wd, nil
}

func (f *fakeSys) RmWatch(fd int, wd uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rmErr != nil {
		return os.NewSyscallError("inotify_rm_watch", f.rmErr)
	}
	for p, w := range f.watches {
		if w == int(wd) {
			delete(f.watches, p)
			// Like the kernel, removal queues an IGNORED record.
			f.chunks = append(f.chunks, chunk{b: Encode(nil, RawEvent{WD: int32(wd), Mask: Ignored})})
			f.cond.Broadcast()
			return nil
		}
	}
	return os.NewSyscallError("inotify_rm_watch", unixsys.EINVAL)
}

func (f *fakeSys) Read(fd int, p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		return -1, err
	}
	if f.closed {
		return -1, unixsys.EBADF
	}
	if len(f.chunks) == 0 {
		return -1, unixsys.EAGAIN
	}
	c := &f.chunks[0]
	var n int
	if c.raw {
		n = copy(p, c.b)
	} else {
		for n < len(c.b) {
			l := HeaderSize + int(binary.NativeEndian.Uint32(c.b[n+12:]))
			if n+l > len(p) {
				break
			}
			n += l
		}
		if n == 0 {
			return -1, unixsys.EINVAL
		}
		copy(p, c.b[:n])
	}
	c.b = c.b[n:]
	if len(c.b) == 0 {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func (f *fakeSys) WaitReadable(int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.chunks) == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed {
		return unixsys.EBADF
	}
	return nil
}

func (f *fakeSys) Close(int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closed = true
	f.cond.Broadcast()
	return f.closeErr
}

func (f *fakeSys) queue(evs ...RawEvent) {
	var b []byte
	for _, ev := range evs {
		b = Encode(b, ev)
	}
	f.push(chunk{b: b})
}

func (f *fakeSys) queueRaw(b []byte) {
	f.push(chunk{b: b, raw: true})
}

func (f *fakeSys) push(c chunk) {
	f.mu.Lock()
	f.chunks = append(f.chunks, c)
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *fakeSys) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// fakePoller waits on the fake kernel.
type fakePoller struct {
	sys        *fakeSys
	mu         sync.Mutex
	registered map[int]bool
	waits      int
}

func newFakePoller(sys *fakeSys) *fakePoller {
	return &fakePoller{sys: sys, registered: make(map[int]bool)}
}

func (p *fakePoller) Register(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered[fd] = true
	return nil
}

func (p *fakePoller) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.registered, fd)
	return nil
}

func (p *fakePoller) Wait(ctx context.Context, fd int) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	done := make(chan error, 1)
	go func() { done <- p.sys.WaitReadable(fd) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePoller) isRegistered(fd int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered[fd]
}

func (p *fakePoller) waitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

func newFakeInotify(sys *fakeSys) *Inotify {
	in, err := Init(WithSyscalls(sys))
	if err != nil {
		panic(err)
	}
	return in
}
