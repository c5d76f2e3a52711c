//go:build linux

// Package unixsys is the kernel side of an inotify session: the handful of
// system calls it is built on, with EINTR handling left to the caller.
package unixsys

import (
	"os"

	"golang.org/x/sys/unix"
)

// Errnos the session tells apart. Syscall errors wrap them, so compare
// with errors.Is.
var (
	EAGAIN error = unix.EAGAIN
	EBADF  error = unix.EBADF
	EINTR  error = unix.EINTR
	EINVAL error = unix.EINVAL
	ENOENT error = unix.ENOENT
	ENOSPC error = unix.ENOSPC
)

// Unix issues the real system calls.
type Unix struct{}

// Init creates a close-on-exec, non-blocking inotify instance.
func (Unix) Init(flags int) (int, error) {
	fd, err := unix.InotifyInit1(flags | unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return -1, os.NewSyscallError("inotify_init1", err)
	}
	return fd, nil
}

func (Unix) AddWatch(fd int, path string, mask uint32) (int, error) {
	wd, err := unix.InotifyAddWatch(fd, path, mask)
	if err != nil {
		return -1, &os.PathError{Op: "inotify_add_watch", Path: path, Err: err}
	}
	return wd, nil
}

func (Unix) RmWatch(fd int, wd uint32) error {
	if _, err := unix.InotifyRmWatch(fd, wd); err != nil {
		return os.NewSyscallError("inotify_rm_watch", err)
	}
	return nil
}

// Read returns the bare errno so the caller can tell EAGAIN, EINTR and
// EINVAL apart.
func (Unix) Read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

// WaitReadable blocks the calling thread until fd has data.
func (Unix) WaitReadable(fd int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Poll(fds, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return os.NewSyscallError("poll", err)
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return os.NewSyscallError("poll", unix.EBADF)
		}
		return nil
	}
}

func (Unix) Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		return os.NewSyscallError("close", err)
	}
	return nil
}
