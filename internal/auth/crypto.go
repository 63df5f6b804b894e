package auth

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/secure/precis"
)

// hmacSHA256 and sha256Sum mirror pool/scram.go's identically named helpers,
// inverted here to build the server's stored/server keys instead of the
// client's proof.
func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// constantTimeEqual performs a constant-time byte comparison, mandatory per
// §9 for the MD5 hash and SCRAM stored-key comparisons.
func constantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// randomBytes returns n cryptographically random bytes.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("auth: generating random bytes: %w", err)
	}
	return b, nil
}

// computeMD5PasswordFromPreHashed computes "md5" + hex(md5(hex(md5(password+user)) ++ salt)),
// the same formula as the teacher's pool.go computeMD5Password, played from
// the server's side where preHashed is already hex(md5(password+user)).
func computeMD5PasswordFromPreHashed(preHashed string, salt []byte) string {
	h := md5.Sum(append([]byte(preHashed), salt...))
	return "md5" + hex.EncodeToString(h[:])
}

// ScramData is the set of per-user secrets a SCRAM-SHA-256 verifier needs:
// the PBKDF2 salt and iteration count, plus the derived stored/server keys.
// This is the server-side analogue of the client-side salted_password
// derivation in pool/scram.go's scramSHA256Auth.
type ScramData struct {
	SaltB64      string
	Iterations   int
	StoredKeyB64 string
	ServerKeyB64 string
}

// CreateScramData derives a ScramData record from a plaintext password, per
// §4.5.4's create_scram_data helper. iterations defaults to 4096 when 0.
func CreateScramData(password string, iterations int) (ScramData, error) {
	if iterations <= 0 {
		iterations = 4096
	}

	// SASLprep-equivalent normalization, matching encoredev-encore's
	// scramAuth which falls back to the raw bytes if normalization fails —
	// PostgreSQL itself accepts passwords that aren't valid SASLprep input.
	normalized, err := precis.OpaqueString.String(password)
	if err != nil {
		normalized = password
	}

	salt, err := randomBytes(16)
	if err != nil {
		return ScramData{}, err
	}

	saltedPassword := pbkdf2.Key([]byte(normalized), salt, iterations, 32, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)
	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))

	return ScramData{
		SaltB64:      base64.StdEncoding.EncodeToString(salt),
		Iterations:   iterations,
		StoredKeyB64: base64.StdEncoding.EncodeToString(storedKey),
		ServerKeyB64: base64.StdEncoding.EncodeToString(serverKey),
	}, nil
}
