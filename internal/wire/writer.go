package wire

import "encoding/binary"

// headerSize is the 1-byte type code plus the 4-byte length prefix every
// backend message carries. Flush(0) drops the whole header and returns only
// the payload; callers that need a codeless length-prefixed frame add the
// length themselves.
const headerSize = 5

// BufferWriter is a growable buffer with a reserved 5-byte header slot,
// matching the shape of the teacher's inline writePGMessage helper
// (proxy/postgres.go, pool/scram.go's sendSASLResponse) but reusable across
// every outbound message in this package instead of re-allocating a header
// by hand at each call site.
type BufferWriter struct {
	buf []byte
}

// NewBufferWriter returns a writer with the header slot reserved.
func NewBufferWriter() *BufferWriter {
	return &BufferWriter{buf: make([]byte, headerSize, 64)}
}

func (w *BufferWriter) grow(n int) {
	if cap(w.buf)-len(w.buf) >= n {
		return
	}
	needed := len(w.buf) + n
	newCap := cap(w.buf)
	if newCap == 0 {
		newCap = headerSize
	}
	for newCap < needed {
		newCap = newCap + newCap/2 + 1 // ~1.5x growth
	}
	grown := make([]byte, len(w.buf), newCap)
	copy(grown, w.buf)
	w.buf = grown
}

// AddInt16 appends a big-endian signed 16-bit integer.
func (w *BufferWriter) AddInt16(v int16) *BufferWriter {
	w.grow(2)
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	w.buf = append(w.buf, b...)
	return w
}

// AddInt32 appends a big-endian signed 32-bit integer.
func (w *BufferWriter) AddInt32(v int32) *BufferWriter {
	w.grow(4)
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	w.buf = append(w.buf, b...)
	return w
}

// AddUint32 appends a big-endian unsigned 32-bit integer.
func (w *BufferWriter) AddUint32(v uint32) *BufferWriter {
	return w.AddInt32(int32(v))
}

// AddString appends raw bytes with no terminator.
func (w *BufferWriter) AddString(s string) *BufferWriter {
	w.grow(len(s))
	w.buf = append(w.buf, s...)
	return w
}

// AddCString appends a string followed by a 0x00 terminator.
func (w *BufferWriter) AddCString(s string) *BufferWriter {
	w.grow(len(s) + 1)
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// Add appends raw bytes verbatim.
func (w *BufferWriter) Add(b []byte) *BufferWriter {
	w.grow(len(b))
	w.buf = append(w.buf, b...)
	return w
}

// AddByte appends a single byte.
func (w *BufferWriter) AddByte(b byte) *BufferWriter {
	w.grow(1)
	w.buf = append(w.buf, b)
	return w
}

// Flush finalizes the message. When code is non-zero, byte 0 becomes the
// type code and bytes 1:5 become the big-endian length of everything after
// the code byte (code+length+payload, minus the code byte itself). When
// code is zero the 5-byte header is dropped entirely and only the payload
// written so far is returned, for the codeless single-byte TLS-negotiation
// reply ('S'/'N') which has no length prefix at all.
func (w *BufferWriter) Flush(code byte) []byte {
	if code == 0 {
		return w.buf[headerSize:]
	}
	w.buf[0] = code
	binary.BigEndian.PutUint32(w.buf[1:5], uint32(len(w.buf)-1))
	return w.buf
}
