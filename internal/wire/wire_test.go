package wire

import "testing"

func TestBufferWriterReaderRoundTrip(t *testing.T) {
	w := NewBufferWriter()
	w.AddInt16(42).AddInt32(-7).AddCString("hello").AddString("raw")
	payload := w.Flush('Z')

	if payload[0] != 'Z' {
		t.Fatalf("expected code Z, got %c", payload[0])
	}

	r := NewBufferReader(payload)
	_, _ = r.Byte()  // code
	_, _ = r.Int32() // length

	i16, err := r.Int16()
	if err != nil || i16 != 42 {
		t.Fatalf("Int16: got %d, %v", i16, err)
	}
	i32, err := r.Int32()
	if err != nil || i32 != -7 {
		t.Fatalf("Int32: got %d, %v", i32, err)
	}
	s, err := r.CString()
	if err != nil || s != "hello" {
		t.Fatalf("CString: got %q, %v", s, err)
	}
	rest, err := r.String(3)
	if err != nil || rest != "raw" {
		t.Fatalf("String: got %q, %v", rest, err)
	}
}

func TestBufferWriterCodelessFlush(t *testing.T) {
	w := NewBufferWriter()
	w.AddByte('S')
	got := w.Flush(0)
	if len(got) != 1 || got[0] != 'S' {
		t.Fatalf("expected single byte 'S', got %v", got)
	}
}

func TestBufferReaderTruncated(t *testing.T) {
	r := NewBufferReader([]byte{0x01})
	if _, err := r.Int32(); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestMessageBufferCodelessFirstFrame(t *testing.T) {
	var buf Buffer
	// The magic SSLRequest pair is written as two Int32s here (a real
	// SSLRequest packs it as two Int16s), so the payload is 8 bytes and the
	// length prefix is 4 + 8 = 12.
	msg := NewBufferWriter()
	msg.AddInt32(1234).AddInt32(5679)
	payload := msg.Flush(0)
	full := append([]byte{0, 0, 0, byte(4 + len(payload))}, payload...)

	buf.Feed(full)
	got, ok, err := buf.Next(false)
	if err != nil || !ok {
		t.Fatalf("expected complete frame, got ok=%v err=%v", ok, err)
	}
	if got.Code != 0 {
		t.Fatalf("expected codeless frame, got code %c", got.Code)
	}
	if len(got.Payload) != 8 {
		t.Fatalf("expected 8-byte payload, got %d", len(got.Payload))
	}
}

func TestMessageBufferFramedMessage(t *testing.T) {
	var buf Buffer
	w := NewBufferWriter()
	w.AddCString("select 1")
	full := w.Flush(Query)

	buf.Feed(full)
	got, ok, err := buf.Next(true)
	if err != nil || !ok {
		t.Fatalf("expected complete frame, got ok=%v err=%v", ok, err)
	}
	if got.Code != Query {
		t.Fatalf("expected Query code, got %c", got.Code)
	}
}

func TestMessageBufferPartialChunksYieldSameSequence(t *testing.T) {
	w := NewBufferWriter()
	w.AddCString("hello world")
	full := w.Flush(Query)

	// Split the same byte stream at every possible boundary and verify the
	// yielded message is identical regardless of how chunks arrived — the
	// framing invariant from §8.
	for split := 0; split <= len(full); split++ {
		var buf Buffer
		buf.Feed(full[:split])
		got, ok, err := buf.Next(true)
		if err != nil {
			t.Fatalf("split=%d: unexpected error on first chunk: %v", split, err)
		}
		if ok && split < len(full) {
			t.Fatalf("split=%d: frame yielded before all of its bytes arrived", split)
		}
		if !ok { // correctly withheld until the rest arrives
			buf.Feed(full[split:])
			got, ok, err = buf.Next(true)
			if err != nil || !ok {
				t.Fatalf("split=%d: expected complete frame, ok=%v err=%v", split, ok, err)
			}
		}
		if string(got.Payload) != string(w.Flush(Query)[5:]) {
			t.Fatalf("split=%d: payload mismatch", split)
		}
	}
}

func TestErrorEncodeDecodeRoundTrip(t *testing.T) {
	f := ErrorFields{
		Severity: "FATAL",
		Code:     "28P01",
		Message:  `password authentication failed for user "postgres"`,
		Detail:   "some detail",
		Hint:     "try again",
	}
	encoded, err := EncodeError(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if encoded[0] != ErrorResponse {
		t.Fatalf("expected ErrorResponse code, got %c", encoded[0])
	}

	decoded, err := DecodeFields(encoded[5:])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, f)
	}
}

func TestErrorFieldsValidateRequiresSeverityCodeMessage(t *testing.T) {
	cases := []ErrorFields{
		{Code: "28P01", Message: "x"},               // missing severity
		{Severity: "FATAL", Message: "x"},            // missing code
		{Severity: "FATAL", Code: "28P01"},            // missing message
		{Severity: "WARN", Code: "28P01", Message: "x"}, // invalid severity
	}
	for i, f := range cases {
		if err := f.Validate(); err == nil {
			t.Errorf("case %d: expected validation error, got nil", i)
		}
	}
}
