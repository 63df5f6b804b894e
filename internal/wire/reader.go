package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned whenever a read runs past the end of the
// underlying buffer.
var ErrTruncated = errors.New("wire: truncated message")

// BufferReader is a positional cursor over an immutable byte slice. It
// mirrors the hand-rolled framing helpers in the teacher's
// proxy/postgres.go (readPGMessage) and pool.go (authenticatePG's inline
// parsing), generalized into a reusable cursor so every message parser in
// this module shares one implementation instead of re-deriving offsets.
type BufferReader struct {
	buf []byte
	off int
}

// NewBufferReader constructs a reader positioned at the start of buf.
func NewBufferReader(buf []byte) *BufferReader {
	return &BufferReader{buf: buf}
}

// SetBuffer repositions the reader over a new slice at the given offset.
func (r *BufferReader) SetBuffer(offset int, buf []byte) {
	r.buf = buf
	r.off = offset
}

// Len returns the number of unread bytes remaining.
func (r *BufferReader) Len() int {
	return len(r.buf) - r.off
}

func (r *BufferReader) need(n int) error {
	if n < 0 || r.off+n > len(r.buf) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, r.Len())
	}
	return nil
}

// Byte reads a single byte.
func (r *BufferReader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

// Int16 reads a big-endian signed 16-bit integer.
func (r *BufferReader) Int16() (int16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	return v, nil
}

// Int32 reads a big-endian signed 32-bit integer.
func (r *BufferReader) Int32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v, nil
}

// Uint32 reads a big-endian unsigned 32-bit integer.
func (r *BufferReader) Uint32() (uint32, error) {
	v, err := r.Int32()
	return uint32(v), err
}

// String reads exactly n bytes and returns them as a UTF-8 string.
func (r *BufferReader) String(n int) (string, error) {
	if err := r.need(n); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+n])
	r.off += n
	return s, nil
}

// CString reads bytes up to and including the next 0x00 terminator,
// returning the string without the terminator.
func (r *BufferReader) CString() (string, error) {
	idx := -1
	for i := r.off; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: unterminated cstring", ErrTruncated)
	}
	s := string(r.buf[r.off:idx])
	r.off = idx + 1
	return s, nil
}

// Bytes reads and returns a view of the next n bytes. The returned slice
// aliases the reader's backing array and must not be mutated by callers.
func (r *BufferReader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Rest returns a view of every remaining unread byte.
func (r *BufferReader) Rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}
