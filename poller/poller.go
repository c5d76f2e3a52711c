// Package poller waits for file descriptors to become readable.
//
// An Epoll is meant to be owned by a single consumer: Wait must not be
// called from more than one goroutine at a time. Descriptors are registered
// one-shot and re-armed by each Wait, so a readable descriptor nobody waits
// for never makes Wait spin.
//
// Always call Unregister before closing a registered descriptor.
package poller

import "errors"

// ErrNotRegistered is returned by Wait for a descriptor that was never
// registered.
var ErrNotRegistered = errors.New("poller: descriptor not registered")

// ErrClosed is returned by every call after Close.
var ErrClosed = errors.New("poller: closed")
