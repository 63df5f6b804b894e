package wire

// EncodeAuthRequest builds an AuthenticationRequest ('R') message carrying
// the given subtype code and any subtype-specific extra bytes (the 4-byte
// MD5 salt, or nothing for AuthOK/AuthCleartextPassword/AuthSASL's mechanism
// list, which callers append to extra themselves).
func EncodeAuthRequest(subtype uint32, extra []byte) []byte {
	w := NewBufferWriter()
	w.AddUint32(subtype).Add(extra)
	return w.Flush(Authentication)
}

// EncodePasswordMessage builds a frontend Password ('p') message. It is
// exported for use by tests that play the client role against a Flow.
func EncodePasswordMessage(s string) []byte {
	w := NewBufferWriter()
	w.AddCString(s)
	return w.Flush(Password)
}

// EncodeSASLInitialResponse builds a frontend SASLInitialResponse ('p')
// message for tests exercising the SCRAM flow from the client side:
// mechanism name, then the length-prefixed data. Subsequent SASLResponse
// messages are built with EncodeSASLResponse.
func EncodeSASLInitialResponse(mechanism string, data []byte) []byte {
	w := NewBufferWriter()
	w.AddCString(mechanism).AddInt32(int32(len(data))).Add(data)
	return w.Flush(Password)
}

// EncodeSASLResponse builds a SASLResponse ('p') message body: raw
// mechanism data with no mechanism name or length prefix.
func EncodeSASLResponse(data []byte) []byte {
	w := NewBufferWriter()
	w.Add(data)
	return w.Flush(Password)
}
