package auth

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

// MD5Flow implements the MD5 Password method (§4.5.3): the backend picks a
// random 4-byte salt, sends it with AuthenticationMD5Password, and expects
// back "md5" + hex(md5(hex(md5(password+user)) ++ salt)) — the same formula
// the teacher's pool.go computeMD5Password builds from the client side.
type MD5Flow struct {
	username string
	salt     []byte
	expected string
	done     bool
}

// NewMD5Flow constructs an MD5 Password Flow for the given username and
// plaintext password, generating a fresh random salt.
func NewMD5Flow(username, password string) (*MD5Flow, error) {
	salt, err := randomBytes(4)
	if err != nil {
		return nil, err
	}
	preHashed := hexMD5(password + username)
	return &MD5Flow{
		username: username,
		salt:     salt,
		expected: computeMD5PasswordFromPreHashed(preHashed, salt),
	}, nil
}

// NewMD5FlowFromPreHashed constructs an MD5 Password Flow from an already
// pre-hashed password, i.e. hex(md5(password+username)) — the form
// §4.5.3's get_pre_hashed_password callback returns, so a verifier store
// never needs to hold a plaintext password.
func NewMD5FlowFromPreHashed(username, preHashed string) (*MD5Flow, error) {
	salt, err := randomBytes(4)
	if err != nil {
		return nil, err
	}
	return &MD5Flow{
		username: username,
		salt:     salt,
		expected: computeMD5PasswordFromPreHashed(preHashed, salt),
	}, nil
}

func hexMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (f *MD5Flow) InitialMessage() ([]byte, error) {
	return wire.EncodeAuthRequest(wire.AuthMD5Password, f.salt), nil
}

func (f *MD5Flow) HandleClientMessage(payload []byte) ([]Output, error) {
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

func (f *MD5Flow) Completed() bool {
	return f.done
}
