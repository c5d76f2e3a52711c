//go:build linux

package poller

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Epoll is a readiness poller backed by epoll(7). An eventfd is registered
// next to the watched descriptors so that a cancelled context can wake a
// blocked Wait.
type Epoll struct {
	mu     sync.Mutex
	epfd   int
	wakefd int
	fds    map[int]struct{}
	closed bool
}

// New creates an epoll instance.
func New() (*Epoll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, os.NewSyscallError("eventfd", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		unix.Close(wakefd)
		unix.Close(epfd)
		return nil, os.NewSyscallError("epoll_ctl", err)
	}
	return &Epoll{
		epfd:   epfd,
		wakefd: wakefd,
		fds:    make(map[int]struct{}),
	}, nil
}

// Register adds fd to the interest list.
func (p *Epoll) Register(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	p.fds[fd] = struct{}{}
	return nil
}

// Unregister removes fd from the interest list.
func (p *Epoll) Unregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.fds[fd]; !ok {
		return ErrNotRegistered
	}
	delete(p.fds, fd)
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.EBADF) {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

// Wait blocks until fd is readable or ctx is done.
func (p *Epoll) Wait(ctx context.Context, fd int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.arm(fd); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	events := make([]unix.EpollEvent, 2)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("epoll_wait", err)
		}
		for _, ev := range events[:n] {
			switch int(ev.Fd) {
			case fd:
				return nil
			case p.wakefd:
				p.drain()
				if err := ctx.Err(); err != nil {
					return err
				}
				if p.isClosed() {
					return ErrClosed
				}
			}
		}
	}
}

// Close releases the epoll instance. Registered descriptors are not closed.
func (p *Epoll) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	p.wake()
	err := unix.Close(p.epfd)
	unix.Close(p.wakefd)
	if err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}

// arm re-enables the one-shot registration of fd.
func (p *Epoll) arm(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if _, ok := p.fds[fd]; !ok {
		return ErrNotRegistered
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLONESHOT, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return os.NewSyscallError("epoll_ctl", err)
	}
	return nil
}

func (p *Epoll) wake() {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	unix.Write(p.wakefd, b[:])
}

func (p *Epoll) drain() {
	var b [8]byte
	unix.Read(p.wakefd, b[:])
}

func (p *Epoll) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
