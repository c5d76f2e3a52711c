package inotify

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// EventMask describes what happened to a watched object. The kernel may set
// bits this package has no name for; they are kept as-is and survive Bits().
type EventMask uint32

// Events observable by userspace. At most one of them is set per event.
const (
	Access       EventMask = 0x00000001 // file was accessed
	Modify       EventMask = 0x00000002 // file was modified
	Attrib       EventMask = 0x00000004 // metadata changed
	CloseWrite   EventMask = 0x00000008 // writable file was closed
	CloseNowrite EventMask = 0x00000010 // unwritable file was closed
	Open         EventMask = 0x00000020 // file was opened
	MovedFrom    EventMask = 0x00000040 // file was moved out of a watched directory
	MovedTo      EventMask = 0x00000080 // file was moved into a watched directory
	Create       EventMask = 0x00000100 // entry created in a watched directory
	Delete       EventMask = 0x00000200 // entry deleted from a watched directory
	DeleteSelf   EventMask = 0x00000400 // watched object was deleted
	MoveSelf     EventMask = 0x00000800 // watched object was moved
)

// Control bits. These come on their own or ORed into one of the events above.
const (
	Unmount   EventMask = 0x00002000 // backing filesystem was unmounted
	QOverflow EventMask = 0x00004000 // event queue overflowed, events were lost
	Ignored   EventMask = 0x00008000 // watch was removed
	IsDir     EventMask = 0x40000000 // subject of the event is a directory
)

const kindBits = Access | Modify | Attrib | CloseWrite | CloseNowrite | Open |
	MovedFrom | MovedTo | Create | Delete | DeleteSelf | MoveSelf

var eventNames = []struct {
	mask EventMask
	name string
}{
	{Access, "ACCESS"},
	{Modify, "MODIFY"},
	{Attrib, "ATTRIB"},
	{CloseWrite, "CLOSE_WRITE"},
	{CloseNowrite, "CLOSE_NOWRITE"},
	{Open, "OPEN"},
	{MovedFrom, "MOVED_FROM"},
	{MovedTo, "MOVED_TO"},
	{Create, "CREATE"},
	{Delete, "DELETE"},
	{DeleteSelf, "DELETE_SELF"},
	{MoveSelf, "MOVE_SELF"},
	{Unmount, "UNMOUNT"},
	{QOverflow, "Q_OVERFLOW"},
	{Ignored, "IGNORED"},
	{IsDir, "ISDIR"},
}

// Has reports whether every bit of h is set in m.
func (m EventMask) Has(h EventMask) bool {
	return h != 0 && m&h == h
}

// Bits returns the raw kernel value, unknown bits included.
func (m EventMask) Bits() uint32 {
	return uint32(m)
}

// Unknown returns the bits of m this package has no name for.
func (m EventMask) Unknown() uint32 {
	var known EventMask
	for _, n := range eventNames {
		known |= n.mask
	}
	return uint32(m &^ known)
}

func (m EventMask) String() string {
	return joinNames(uint32(m), func(yield func(uint32, string)) {
		for _, n := range eventNames {
			yield(uint32(n.mask), n.name)
		}
	})
}

// EventKind is the single filesystem operation an event reports.
type EventKind int

const (
	KindAccess EventKind = iota + 1
	KindAttrib
	KindCloseWrite
	KindCloseNowrite
	KindCreate
	KindDelete
	KindDeleteSelf
	KindModify
	KindMoveSelf
	KindMovedFrom
	KindMovedTo
	KindOpen
)

var kindOf = map[EventMask]EventKind{
	Access:       KindAccess,
	Attrib:       KindAttrib,
	CloseWrite:   KindCloseWrite,
	CloseNowrite: KindCloseNowrite,
	Create:       KindCreate,
	Delete:       KindDelete,
	DeleteSelf:   KindDeleteSelf,
	Modify:       KindModify,
	MoveSelf:     KindMoveSelf,
	MovedFrom:    KindMovedFrom,
	MovedTo:      KindMovedTo,
	Open:         KindOpen,
}

func (k EventKind) String() string {
	for m, kk := range kindOf {
		if kk == k {
			return m.String()
		}
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// AuxFlags are the qualifier bits that may accompany an event kind.
type AuxFlags struct {
	Ignored bool
	IsDir   bool
	Unmount bool
}

// ParsedEventMask is the structured form of an EventMask.
type ParsedEventMask struct {
	// Kind is zero for masks that only carry control bits, such as the
	// IGNORED record that follows a watch removal.
	Kind EventKind
	Aux  AuxFlags
}

var (
	// ErrQueueOverflow is returned by Parse for the record the kernel emits
	// when its event queue overflowed.
	ErrQueueOverflow = errors.New("inotify: event queue overflowed")
	// ErrMultipleKinds is returned by Parse when more than one event kind
	// bit is set, which the kernel never does.
	ErrMultipleKinds = errors.New("inotify: more than one event kind in mask")
)

// Parse splits m into its event kind and auxiliary flags.
func (m EventMask) Parse() (ParsedEventMask, error) {
	if m.Has(QOverflow) {
		return ParsedEventMask{}, ErrQueueOverflow
	}
	k := m & kindBits
	if bits.OnesCount32(uint32(k)) > 1 {
		return ParsedEventMask{}, fmt.Errorf("%w: %s", ErrMultipleKinds, k)
	}
	return ParsedEventMask{
		Kind: kindOf[k],
		Aux: AuxFlags{
			Ignored: m.Has(Ignored),
			IsDir:   m.Has(IsDir),
			Unmount: m.Has(Unmount),
		},
	}, nil
}

// WatchMask selects the events a watch reports, plus flags that change how
// the watch is created.
type WatchMask uint32

const (
	WatchAccess       = WatchMask(Access)
	WatchModify       = WatchMask(Modify)
	WatchAttrib       = WatchMask(Attrib)
	WatchCloseWrite   = WatchMask(CloseWrite)
	WatchCloseNowrite = WatchMask(CloseNowrite)
	WatchOpen         = WatchMask(Open)
	WatchMovedFrom    = WatchMask(MovedFrom)
	WatchMovedTo      = WatchMask(MovedTo)
	WatchCreate       = WatchMask(Create)
	WatchDelete       = WatchMask(Delete)
	WatchDeleteSelf   = WatchMask(DeleteSelf)
	WatchMoveSelf     = WatchMask(MoveSelf)

	WatchClose     = WatchCloseWrite | WatchCloseNowrite
	WatchMove      = WatchMovedFrom | WatchMovedTo
	WatchAllEvents = WatchMask(kindBits)

	WatchOnlyDir    WatchMask = 0x01000000 // only watch the path if it is a directory
	WatchDontFollow WatchMask = 0x02000000 // don't dereference a symlink
	WatchExclUnlink WatchMask = 0x04000000 // drop events for unlinked children
	WatchMaskAdd    WatchMask = 0x20000000 // OR into an existing watch instead of replacing it
	WatchOneShot    WatchMask = 0x80000000 // remove the watch after one event
)

var watchNames = []struct {
	mask WatchMask
	name string
}{
	{WatchOnlyDir, "ONLYDIR"},
	{WatchDontFollow, "DONT_FOLLOW"},
	{WatchExclUnlink, "EXCL_UNLINK"},
	{WatchMaskAdd, "MASK_ADD"},
	{WatchOneShot, "ONESHOT"},
}

// ParseWatchMask turns a comma or pipe separated list of names such as
// "create,delete,modify" into a WatchMask. Names are matched without regard
// to case; "all", "close" and "move" are accepted as shorthands.
func ParseWatchMask(s string) (WatchMask, error) {
	var m WatchMask
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '|' }) {
		name := strings.ToUpper(strings.TrimSpace(f))
		switch name {
		case "ALL", "ALL_EVENTS":
			m |= WatchAllEvents
			continue
		case "CLOSE":
			m |= WatchClose
			continue
		case "MOVE":
			m |= WatchMove
			continue
		}
		found := false
		for _, n := range eventNames {
			if n.name == name && n.mask&kindBits != 0 {
				m |= WatchMask(n.mask)
				found = true
				break
			}
		}
		for _, n := range watchNames {
			if n.name == name {
				m |= n.mask
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown watch mask name %q", f)
		}
	}
	return m, nil
}

func (m WatchMask) String() string {
	return joinNames(uint32(m), func(yield func(uint32, string)) {
		for _, n := range eventNames {
			if n.mask&kindBits != 0 {
				yield(uint32(n.mask), n.name)
			}
		}
		for _, n := range watchNames {
			yield(uint32(n.mask), n.name)
		}
	})
}

func joinNames(v uint32, each func(yield func(uint32, string))) string {
	var b strings.Builder
	rest := v
	each(func(bit uint32, name string) {
		if v&bit == bit {
			b.WriteString("|")
			b.WriteString(name)
			rest &^= bit
		}
	})
	if rest != 0 {
		fmt.Fprintf(&b, "|0x%x", rest)
	}
	if b.Len() == 0 {
		return "0"
	}
	return b.String()[1:] // strip leading pipe
}
