//go:build !linux

package unixsys

import (
	"errors"
	"io/fs"
)

// ErrUnsupported is returned by every call on platforms without inotify.
var ErrUnsupported = errors.New("inotify is only available on linux")

// Nothing returns these off Linux; they only need to stay distinct.
var (
	EAGAIN = errors.New("resource temporarily unavailable")
	EBADF  = errors.New("bad file descriptor")
	EINTR  = errors.New("interrupted system call")
	EINVAL = errors.New("invalid argument")
	ENOENT = fs.ErrNotExist
	ENOSPC = errors.New("no space left on device")
)

type Unix struct{}

func (Unix) Init(int) (int, error) { return -1, ErrUnsupported }

func (Unix) AddWatch(int, string, uint32) (int, error) { return -1, ErrUnsupported }

func (Unix) RmWatch(int, uint32) error { return ErrUnsupported }

func (Unix) Read(int, []byte) (int, error) { return 0, ErrUnsupported }

func (Unix) WaitReadable(int) error { return ErrUnsupported }

func (Unix) Close(int) error { return ErrUnsupported }
