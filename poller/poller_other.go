//go:build !linux

package poller

import (
	"context"
	"errors"
)

var errUnsupported = errors.New("poller: epoll is only available on linux")

type Epoll struct{}

func New() (*Epoll, error) { return nil, errUnsupported }

func (p *Epoll) Register(int) error { return errUnsupported }

func (p *Epoll) Unregister(int) error { return errUnsupported }

func (p *Epoll) Wait(context.Context, int) error { return errUnsupported }

func (p *Epoll) Close() error { return nil }
