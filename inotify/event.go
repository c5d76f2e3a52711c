package inotify

import (
	"fmt"
)

// Event is a decoded record that no longer depends on the read buffer.
type Event struct {
	// WD is equal to the descriptor Watches.Add returned for the watch the
	// event belongs to. Queue overflow records carry a descriptor with ID -1.
	WD   WatchDescriptor
	Mask EventMask
	// Cookie links the MovedFrom and MovedTo halves of a rename. It is
	// zero for every other event.
	Cookie uint32
	// Name is set when the subject is an entry of a watched directory, and
	// empty when the subject is the watched object itself.
	Name string
}

func (e Event) String() string {
	if e.Name == "" {
		return fmt.Sprintf("%v: %v", e.WD, e.Mask)
	}
	return fmt.Sprintf("%v %q: %v", e.WD, e.Name, e.Mask)
}

// Owned copies the name out of the read buffer.
func (r RawEvent) Owned(wd WatchDescriptor) Event {
	ev := Event{WD: wd, Mask: r.Mask, Name: string(r.Name)}
	if r.Mask&(MovedFrom|MovedTo) != 0 {
		ev.Cookie = r.Cookie
	}
	return ev
}

// Events is the result of one read. It yields the records in the order the
// kernel produced them and must not be used after the read buffer has been
// handed to another read.
//
//	evs, err := in.ReadEventsBlocking(buf, 0)
//	for evs.Next() {
//		ev := evs.Event()
//		...
//	}
type Events struct {
	in      *Inotify
	records *Records
	buf     []byte
	n       int
	cur     Event
}

// Next advances to the next event.
func (e *Events) Next() bool {
	if !e.records.Next() {
		return false
	}
	raw := e.records.Record()
	if raw.Mask.Has(Ignored) {
		e.cur = raw.Owned(e.in.watches.ignored(raw.WD))
	} else {
		e.cur = raw.Owned(e.in.watches.descriptor(raw.WD))
	}
	if raw.Mask.Has(QOverflow) {
		metricQueueOverflows.Inc()
		e.in.logger.Warn("Event queue overflowed, events were lost")
	}
	metricRecordsDecoded.Inc()
	return true
}

// Event returns the event Next advanced to.
func (e *Events) Event() Event {
	return e.cur
}

// Raw returns the current record without copying its name. The name is
// only valid until the read buffer is reused.
func (e *Events) Raw() RawEvent {
	return e.records.Record()
}

// Consumed is the number of bytes at the front of the buffer that hold
// complete records.
func (e *Events) Consumed() int {
	return e.records.Consumed()
}

// Tail returns the bytes of a record that was cut short. Copy them to the
// front of the buffer and pass their length as pending to the next read.
func (e *Events) Tail() []byte {
	return e.buf[e.records.Consumed():e.n]
}

// Collect drains the remaining events into a slice.
func (e *Events) Collect() []Event {
	var out []Event
	for e.Next() {
		out = append(out, e.Event())
	}
	return out
}
