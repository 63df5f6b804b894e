package wire

import (
	"encoding/binary"
	"errors"
)

var errShortLength = errors.New("wire: declared message length shorter than header")

// Message is one complete, framed protocol message as delivered to the
// connection engine: a type code (0 for the codeless first frame of a
// session) and the raw payload, excluding the code and length prefix.
type Message struct {
	Code    byte // 0 for the startup/SSLRequest frame
	Payload []byte
}

// Buffer incrementally defragments an incoming byte stream into complete
// messages. It never copies payload bytes beyond what slicing requires,
// and retains any partial message across Feed calls — the same
// accumulate-then-drain shape as the teacher's readStartupMessage retry
// loop in proxy/postgres.go, generalized to the steady-state message
// stream instead of being special-cased to the first frame.
type Buffer struct {
	pending []byte
}

// Feed appends newly read bytes to the internal buffer.
func (b *Buffer) Feed(chunk []byte) {
	b.pending = append(b.pending, chunk...)
}

// Next attempts to extract one complete message. hasStarted selects
// whether the very first frame is parsed as codeless (length-prefixed
// only, per §4.2) or as a normal code-prefixed frame. It returns
// ok == false when fewer bytes than the declared length are buffered —
// callers should Feed more and retry.
func (b *Buffer) Next(hasStarted bool) (msg Message, ok bool, err error) {
	if !hasStarted {
		return b.nextCodeless()
	}
	return b.nextFramed()
}

func (b *Buffer) nextCodeless() (Message, bool, error) {
	if len(b.pending) < 4 {
		return Message{}, false, nil
	}
	length := int(binary.BigEndian.Uint32(b.pending[:4]))
	if length < 4 {
		return Message{}, false, errShortLength
	}
	if len(b.pending) < length {
		return Message{}, false, nil
	}
	payload := b.pending[4:length]
	b.pending = b.pending[length:]
	return Message{Code: 0, Payload: payload}, true, nil
}

func (b *Buffer) nextFramed() (Message, bool, error) {
	if len(b.pending) < 5 {
		return Message{}, false, nil
	}
	code := b.pending[0]
	length := int(binary.BigEndian.Uint32(b.pending[1:5]))
	if length < 4 {
		return Message{}, false, errShortLength
	}
	total := 1 + length
	if len(b.pending) < total {
		return Message{}, false, nil
	}
	payload := b.pending[5:total]
	b.pending = b.pending[total:]
	return Message{Code: code, Payload: payload}, true, nil
}

// Reset discards any buffered bytes. Called after a TLS upgrade, where the
// plaintext message_buffer must not leak into the upgraded stream (§3).
func (b *Buffer) Reset() {
	b.pending = nil
}
