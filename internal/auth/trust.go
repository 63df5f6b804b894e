package auth

// TrustFlow implements the Trust authentication method (§4.5.1): the backend
// accepts the client unconditionally and never exchanges a password message.
type TrustFlow struct {
	done bool
}

// NewTrustFlow constructs a Flow that completes as soon as the engine asks
// for its initial message — no client round-trip ever happens.
func NewTrustFlow() *TrustFlow {
	return &TrustFlow{}
}

// InitialMessage returns nil; the engine interprets a nil initial message
// plus Completed()==true as "send AuthenticationOk and move on" without
// ever reading a client Password message.
func (f *TrustFlow) InitialMessage() ([]byte, error) {
	f.done = true
	return nil, nil
}

// HandleClientMessage is never called for Trust, but is implemented to
// satisfy Flow; any invocation is a caller bug, not a protocol condition.
func (f *TrustFlow) HandleClientMessage(payload []byte) ([]Output, error) {
	return nil, nil
}

func (f *TrustFlow) Completed() bool {
	return f.done
}
