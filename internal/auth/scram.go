package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

const scramMechanism = "SCRAM-SHA-256"

var errMalformedSCRAM = errors.New("auth: malformed SCRAM message")

type scramStep int

const (
	scramAwaitingClientFirst scramStep = iota
	scramAwaitingClientFinal
	scramDone
)

// ScramFlow implements the SCRAM-SHA-256 method (§4.5.4), playing the server
// side of the exchange the teacher's pool/scram.go plays from the client:
// mechanism negotiation, server-first-message nonce extension, and the
// final proof/signature verification, all reconstructed from
// scramSHA256Auth and parseServerFirst run in reverse.
type ScramFlow struct {
	username string
	data     ScramData

	step               scramStep
	clientNonce        string
	serverNonce        string
	clientFirstBare    string
	serverFirstMessage string
}

// NewScramFlow constructs a SCRAM-SHA-256 Flow for username, verified
// against the supplied per-user ScramData (salt, iterations, stored/server
// keys) produced ahead of time by CreateScramData.
func NewScramFlow(username string, data ScramData) *ScramFlow {
	return &ScramFlow{username: username, data: data}
}

func (f *ScramFlow) InitialMessage() ([]byte, error) {
	extra := wire.NewBufferWriter().AddCString(scramMechanism).AddByte(0).Flush(0)
	return wire.EncodeAuthRequest(wire.AuthSASL, extra), nil
}

func (f *ScramFlow) HandleClientMessage(payload []byte) ([]Output, error) {
	switch f.step {
	case scramAwaitingClientFirst:
		return f.handleClientFirst(payload)
	case scramAwaitingClientFinal:
		return f.handleClientFinal(payload)
	default:
		return closeWith(fatal(wire.SQLStateProtocolViolation, "unexpected SASL message after SCRAM completion"))
	}
}

func (f *ScramFlow) handleClientFirst(payload []byte) ([]Output, error) {
	r := wire.NewBufferReader(payload)
	mechanism, err := r.CString()
	if err != nil {
		return nil, err
	}
	if mechanism != scramMechanism {
		return closeWith(fatal(wire.SQLStateInvalidAuthorizationSpec, "Unsupported SASL authentication mechanism"))
	}
	length, err := r.Int32()
	if err != nil {
		return nil, err
	}
	clientFirst, err := r.Bytes(int(length))
	if err != nil {
		return nil, err
	}

	bare, nonce, err := parseClientFirstBare(string(clientFirst))
	if err != nil {
		return closeWith(fatal(wire.SQLStateProtocolViolation, "malformed SCRAM client-first-message"))
	}
	f.clientFirstBare = bare
	f.clientNonce = nonce

	extension, err := randomBytes(18)
	if err != nil {
		return nil, err
	}
	f.serverNonce = nonce + base64.StdEncoding.EncodeToString(extension)

	f.serverFirstMessage = "r=" + f.serverNonce + ",s=" + f.data.SaltB64 + ",i=" + strconv.Itoa(f.data.Iterations)
	f.step = scramAwaitingClientFinal

	continueMsg := wire.EncodeAuthRequest(wire.AuthSASLContinue, []byte(f.serverFirstMessage))
	return []Output{{Bytes: continueMsg}}, nil
}

func (f *ScramFlow) handleClientFinal(payload []byte) ([]Output, error) {
	f.step = scramDone

	r := wire.NewBufferReader(payload)
	clientFinal := string(r.Rest())

	channelBinding, nonce, proofB64, err := parseClientFinal(clientFinal)
	if err != nil {
		return closeWith(fatal(wire.SQLStateInvalidAuthorizationSpec, "Invalid client final message"))
	}
	if nonce != f.serverNonce {
		return closeWith(fatal(wire.SQLStateInvalidAuthorizationSpec, "Nonce mismatch"))
	}

	clientProof, err := base64.StdEncoding.DecodeString(proofB64)
	if err != nil {
		return closeWith(fatal(wire.SQLStateInvalidAuthorizationSpec, "Invalid client final message"))
	}
	if len(clientProof) != sha256.Size {
		return closeWith(fatal(wire.SQLStateInvalidAuthorizationSpec, "Invalid client final message"))
	}

	storedKey, err := base64.StdEncoding.DecodeString(f.data.StoredKeyB64)
	if err != nil {
		return nil, err
	}
	serverKey, err := base64.StdEncoding.DecodeString(f.data.ServerKeyB64)
	if err != nil {
		return nil, err
	}

	clientFinalWithoutProof := "c=" + channelBinding + ",r=" + f.serverNonce
	authMessage := f.clientFirstBare + "," + f.serverFirstMessage + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	computedClientKey := xorBytes(clientSignature, clientProof)
	computedStoredKey := sha256Sum(computedClientKey)

	if !constantTimeEqual(computedStoredKey, storedKey) {
		return closeWith(fatal(wire.SQLStateInvalidAuthorizationSpec, `password authentication failed for user "`+f.username+`"`))
	}

	serverSignature := hmacSHA256(serverKey, []byte(authMessage))
	finalMsg := wire.EncodeAuthRequest(wire.AuthSASLFinal, []byte("v="+base64.StdEncoding.EncodeToString(serverSignature)))

	return []Output{{Bytes: finalMsg}}, nil
}

func (f *ScramFlow) Completed() bool {
	return f.step == scramDone
}

// parseClientFirstBare splits a SCRAM client-first-message into its bare
// part (after the GS2 header's two leading commas) and the r= client nonce,
// mirroring pool/scram.go's parseServerFirst but for the opposite message.
func parseClientFirstBare(msg string) (bare, nonce string, err error) {
	idx := strings.Index(msg, "n=")
	if idx < 0 {
		return "", "", errMalformedSCRAM
	}
	bare = msg[idx:]
	for _, field := range strings.Split(bare, ",") {
		if strings.HasPrefix(field, "r=") {
			nonce = strings.TrimPrefix(field, "r=")
		}
	}
	if nonce == "" {
		return "", "", errMalformedSCRAM
	}
	return bare, nonce, nil
}

func parseClientFinal(msg string) (channelBinding, nonce, proof string, err error) {
	for _, field := range strings.Split(msg, ",") {
		switch {
		case strings.HasPrefix(field, "c="):
			channelBinding = strings.TrimPrefix(field, "c=")
		case strings.HasPrefix(field, "r="):
			nonce = strings.TrimPrefix(field, "r=")
		case strings.HasPrefix(field, "p="):
			proof = strings.TrimPrefix(field, "p=")
		}
	}
	if channelBinding == "" || nonce == "" || proof == "" {
		return "", "", "", errMalformedSCRAM
	}
	return channelBinding, nonce, proof, nil
}

