package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
)

// ErrShortPayload is returned by Reader when the payload ends early.
var ErrShortPayload = errors.New("protocol: short payload")

// Builder appends little-endian values to a payload.
type Builder struct {
	buf []byte
}

// NewBuilder returns a Builder with room for n bytes.
func NewBuilder(n int) *Builder {
	return &Builder{buf: make([]byte, 0, n)}
}

func (b *Builder) Uint16(v uint16) *Builder {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	return b
}

func (b *Builder) Uint32(v uint32) *Builder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *Builder) Int32(v int32) *Builder {
	return b.Uint32(uint32(v))
}

func (b *Builder) Float32(v float32) *Builder {
	return b.Uint32(math.Float32bits(v))
}

func (b *Builder) Byte(v byte) *Builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *Builder) Bytes(v []byte) *Builder {
	b.buf = append(b.buf, v...)
	return b
}

// CString appends s followed by a NUL terminator.
func (b *Builder) CString(s string) *Builder {
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return b
}

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return len(b.buf) }

// Payload returns the accumulated bytes.
func (b *Builder) Payload() []byte { return b.buf }

// Reader consumes little-endian values from a payload. The first failure is
// sticky and reported by Err.
type Reader struct {
	buf []byte
	err error
}

// NewReader wraps p.
func NewReader(p []byte) *Reader {
	return &Reader{buf: p}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = ErrShortPayload
		r.buf = nil
		return nil
	}
	v := r.buf[:n]
	r.buf = r.buf[n:]
	return v
}

func (r *Reader) Uint16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) Uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) Int32() int32 { return int32(r.Uint32()) }

func (r *Reader) Float32() float32 { return math.Float32frombits(r.Uint32()) }

func (r *Reader) Byte() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

// CString reads up to the next NUL. A missing terminator consumes the rest of
// the payload.
func (r *Reader) CString() string {
	if r.err != nil {
		return ""
	}
	i := bytes.IndexByte(r.buf, 0)
	if i < 0 {
		s := string(r.buf)
		r.buf = nil
		return s
	}
	s := string(r.buf[:i])
	r.buf = r.buf[i+1:]
	return s
}

// Rest returns the unread bytes.
func (r *Reader) Rest() []byte {
	if r.err != nil {
		return nil
	}
	v := r.buf
	r.buf = nil
	return v
}

// Remaining reports how many bytes are left.
func (r *Reader) Remaining() int { return len(r.buf) }

// Err returns the first decoding error.
func (r *Reader) Err() error { return r.err }

// TrimCString returns p up to its first NUL byte.
func TrimCString(p []byte) string {
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}
