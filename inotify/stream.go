package inotify

import (
	"context"
	"errors"
	"io"
)

// Poller tells an EventStream when the instance has data. Register and
// Unregister bracket the stream's lifetime; Wait blocks until fd is
// readable or ctx is done.
type Poller interface {
	Register(fd int) error
	Unregister(fd int) error
	Wait(ctx context.Context, fd int) error
}

type streamState int

const (
	streamIdle streamState = iota
	streamAwaiting
	streamDraining
	streamDone
)

// EventStream yields events one at a time, reading more only when the
// events of the previous read are used up and waiting on the Poller only
// when a read finds nothing. It is not safe for concurrent use.
type EventStream struct {
	in      *Inotify
	poller  Poller
	buf     []byte
	pending int
	events  *Events
	state   streamState

	registered bool
}

// EventStream registers the instance with p and returns a stream that reads
// into buf. Watches can still be managed through in.Watches().
func (in *Inotify) EventStream(buf []byte, p Poller) (*EventStream, error) {
	if in.isClosed() {
		return nil, ErrClosed
	}
	if len(buf) < HeaderSize {
		return nil, ErrBufferTooSmall
	}
	if err := p.Register(in.fd); err != nil {
		return nil, err
	}
	return &EventStream{in: in, poller: p, buf: buf, registered: true}, nil
}

// Next returns the next event. It returns io.EOF once the instance is
// closed. Any other error ends the current call only; Next may be called
// again, e.g. with a larger buffer after ErrBufferTooSmall.
func (s *EventStream) Next(ctx context.Context) (Event, error) {
	for {
		if s.state == streamDone || s.in.isClosed() {
			s.state = streamDone
			return Event{}, io.EOF
		}
		if s.events != nil {
			if s.events.Next() {
				s.state = streamDraining
				return s.events.Event(), nil
			}
			s.pending = copy(s.buf, s.events.Tail())
			s.events = nil
		}
		s.state = streamIdle
		evs, err := s.in.ReadEvents(s.buf, s.pending)
		switch {
		case err == nil:
			s.events = evs
		case errors.Is(err, ErrWouldBlock):
			s.state = streamAwaiting
			metricStreamSuspensions.Inc()
			if err := s.poller.Wait(ctx, s.in.fd); err != nil {
				if s.in.isClosed() {
					continue
				}
				return Event{}, err
			}
		case errors.Is(err, ErrClosed):
			s.state = streamDone
			return Event{}, io.EOF
		default:
			return Event{}, err
		}
	}
}

// Grow replaces the read buffer with one of size bytes, keeping a pending
// partial record. It is the way out of ErrBufferTooSmall and has no effect
// while events of the previous read are still buffered.
func (s *EventStream) Grow(size int) {
	if size <= len(s.buf) || s.events != nil {
		return
	}
	buf := make([]byte, size)
	copy(buf, s.buf[:s.pending])
	s.buf = buf
}

// Watches returns the watch handle of the underlying instance.
func (s *EventStream) Watches() Watches {
	return s.in.Watches()
}

// Close drops the readiness registration. The instance stays open.
func (s *EventStream) Close() error {
	s.state = streamDone
	s.events = nil
	if !s.registered {
		return nil
	}
	s.registered = false
	if s.in.isClosed() {
		// The kernel dropped the registration with the descriptor.
		return nil
	}
	return s.poller.Unregister(s.in.fd)
}

// Into closes the stream and hands back the instance.
func (s *EventStream) Into() (*Inotify, error) {
	err := s.Close()
	return s.in, err
}
