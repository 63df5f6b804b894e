package auth

import (
	"github.com/supabase-community/pg-gateway/internal/wire"
)

// PasswordFlow implements the Cleartext Password method (§4.5.2): the
// backend sends AuthenticationCleartextPassword and expects exactly one
// Password message back, compared verbatim against the configured secret.
type PasswordFlow struct {
	username string
	expected string
	done     bool
}

// NewPasswordFlow constructs a cleartext password Flow that accepts only
// expectedPassword for username.
func NewPasswordFlow(username, expectedPassword string) *PasswordFlow {
	return &PasswordFlow{username: username, expected: expectedPassword}
}

func (f *PasswordFlow) InitialMessage() ([]byte, error) {
	return wire.EncodeAuthRequest(wire.AuthCleartextPassword, nil), nil
}

func (f *PasswordFlow) HandleClientMessage(payload []byte) ([]Output, error) {
	f.done = true

	r := wire.NewBufferReader(payload)
	got, err := r.CString()
	if err != nil {
		return nil, err
	}

	if !constantTimeEqual([]byte(got), []byte(f.expected)) {
		return closeWith(fatal(wire.SQLStateInvalidPassword, `password authentication failed for user "`+f.username+`"`))
	}

	return nil, nil
}

func (f *PasswordFlow) Completed() bool {
	return f.done
}
