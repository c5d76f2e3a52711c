package inotify

import (
	"bytes"
	"encoding/binary"
)

// HeaderSize is the size of the fixed part of a kernel event record
// (struct inotify_event without its name).
const HeaderSize = 16

// RawEvent is one record exactly as the kernel wrote it. Name aliases the
// buffer it was decoded from and is only valid until that buffer is written
// again; use Owned or Event to keep it.
type RawEvent struct {
	WD     int32
	Mask   EventMask
	Cookie uint32
	Name   []byte // without the terminating NUL and padding; nil if absent
}

// Records iterates over the complete records at the front of a buffer.
type Records struct {
	buf []byte
	end int
	pos int
	cur RawEvent
}

// Decode returns an iterator over the complete records in buf[:n] and the
// number of bytes they occupy. Bytes past consumed belong to a record that
// was cut short; the caller keeps them and appends the next read after
// them. Decode never reads outside buf[:n].
func Decode(buf []byte, n int) (records *Records, consumed int) {
	if n > len(buf) {
		n = len(buf)
	}
	if n < 0 {
		n = 0
	}
	buf = buf[:n]
	end := scan(buf)
	return &Records{buf: buf, end: end}, end
}

// scan walks the record headers and returns the offset of the first record
// that is not completely contained in buf.
func scan(buf []byte) int {
	pos := 0
	for len(buf)-pos >= HeaderSize {
		l := binary.NativeEndian.Uint32(buf[pos+12:])
		if uint64(l) > uint64(len(buf)-pos-HeaderSize) {
			break
		}
		pos += HeaderSize + int(l)
	}
	return pos
}

// Next decodes the next record. It returns false once all complete records
// have been seen.
func (r *Records) Next() bool {
	if r.pos >= r.end {
		return false
	}
	b := r.buf[r.pos:r.end]
	l := int(binary.NativeEndian.Uint32(b[12:]))
	name := b[HeaderSize : HeaderSize+l]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	if len(name) == 0 {
		name = nil
	} else {
		name = name[:len(name):len(name)]
	}
	r.cur = RawEvent{
		WD:     int32(binary.NativeEndian.Uint32(b[0:])),
		Mask:   EventMask(binary.NativeEndian.Uint32(b[4:])),
		Cookie: binary.NativeEndian.Uint32(b[8:]),
		Name:   name,
	}
	r.pos += HeaderSize + l
	return true
}

// Record returns the record decoded by the last call to Next.
func (r *Records) Record() RawEvent {
	return r.cur
}

// Consumed is the length of the complete records at the front of the buffer.
func (r *Records) Consumed() int {
	return r.end
}

// Encode appends the kernel representation of ev to dst, padding the name
// with NULs to a multiple of HeaderSize like the kernel does. It is the
// inverse of Decode and exists for feeding decoders in tests and tools.
func Encode(dst []byte, ev RawEvent) []byte {
	l := 0
	if len(ev.Name) > 0 {
		l = (len(ev.Name) + HeaderSize) / HeaderSize * HeaderSize
	}
	var h [HeaderSize]byte
	binary.NativeEndian.PutUint32(h[0:], uint32(ev.WD))
	binary.NativeEndian.PutUint32(h[4:], uint32(ev.Mask))
	binary.NativeEndian.PutUint32(h[8:], ev.Cookie)
	binary.NativeEndian.PutUint32(h[12:], uint32(l))
	dst = append(dst, h[:]...)
	dst = append(dst, ev.Name...)
	for i := len(ev.Name); i < l; i++ {
		dst = append(dst, 0)
	}
	return dst
}
