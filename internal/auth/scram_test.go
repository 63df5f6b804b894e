package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

// scramClient reproduces the reference client-side derivation independently
// of the server implementation under test, the same inversion-of-roles
// approach used against the teacher's pool/scram.go when it plays the
// client against a real backend.
type scramClient struct {
	password string
	nonce    string
}

func (c scramClient) clientFirstBare() string {
	return "n=user,r=" + c.nonce
}

func (c scramClient) clientFirstMessage() string {
	return "n,," + c.clientFirstBare()
}

func (c scramClient) finalize(serverFirst, salt string, iterations int) (clientFinalWithoutProof, proofB64, authMessage string) {
	saltedPassword := pbkdf2.Key([]byte(c.password), mustB64Decode(salt), iterations, 32, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256Sum(clientKey)

	channelBinding := base64.StdEncoding.EncodeToString([]byte("n,,"))
	fields := strings.Split(serverFirst, ",")
	serverNonce := strings.TrimPrefix(fields[0], "r=")

	clientFinalWithoutProof = "c=" + channelBinding + ",r=" + serverNonce
	authMessage = c.clientFirstBare() + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey, []byte(authMessage))
	proof := xorBytes(clientKey, clientSignature)
	proofB64 = base64.StdEncoding.EncodeToString(proof)
	return
}

func mustB64Decode(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func TestScramFlowHappyPath(t *testing.T) {
	data, err := CreateScramData("s3cret", 4096)
	if err != nil {
		t.Fatalf("CreateScramData: %v", err)
	}

	f := NewScramFlow("user", data)
	im, err := f.InitialMessage()
	if err != nil {
		t.Fatalf("InitialMessage: %v", err)
	}
	if im[0] != wire.Authentication {
		t.Fatalf("expected Authentication code, got %c", im[0])
	}

	client := scramClient{password: "s3cret", nonce: "rOprNGfwEbeRWgbNEkqO"}
	clientFirst := client.clientFirstMessage()

	firstPayload := wire.NewBufferWriter().
		AddCString(scramMechanism).
		AddInt32(int32(len(clientFirst))).
		AddString(clientFirst).
		Flush(0)

	outs, err := f.HandleClientMessage(firstPayload)
	if err != nil {
		t.Fatalf("handleClientFirst: %v", err)
	}
	if len(outs) != 1 || outs[0].Close {
		t.Fatalf("expected one continue message, got %+v", outs)
	}

	r := wire.NewBufferReader(outs[0].Bytes)
	_, _ = r.Byte()
	_, _ = r.Int32()
	if subtype, _ := r.Uint32(); subtype != wire.AuthSASLContinue {
		t.Fatalf("expected AuthSASLContinue, got %d", subtype)
	}
	serverFirst := string(r.Rest())
	if !strings.HasPrefix(serverFirst, "r="+client.nonce) {
		t.Fatalf("server nonce must extend the client nonce: %q", serverFirst)
	}

	clientFinalWithoutProof, proofB64, _ := client.finalize(serverFirst, data.SaltB64, data.Iterations)
	clientFinal := clientFinalWithoutProof + ",p=" + proofB64

	finalPayload := wire.NewBufferWriter().AddString(clientFinal).Flush(0)
	outs, err = f.HandleClientMessage(finalPayload)
	if err != nil {
		t.Fatalf("handleClientFinal: %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected a single SASLFinal output, got %+v", outs)
	}
	if !f.Completed() {
		t.Fatal("expected Completed after client-final")
	}

	r2 := wire.NewBufferReader(outs[0].Bytes)
	_, _ = r2.Byte()
	_, _ = r2.Int32()
	if subtype, _ := r2.Uint32(); subtype != wire.AuthSASLFinal {
		t.Fatalf("expected AuthSASLFinal, got %d", subtype)
	}
}

func TestScramFlowRejectsWrongPassword(t *testing.T) {
	data, err := CreateScramData("s3cret", 4096)
	if err != nil {
		t.Fatalf("CreateScramData: %v", err)
	}

	f := NewScramFlow("user", data)
	_, _ = f.InitialMessage()

	client := scramClient{password: "totally-wrong", nonce: "rOprNGfwEbeRWgbNEkqO"}
	clientFirst := client.clientFirstMessage()
	firstPayload := wire.NewBufferWriter().
		AddCString(scramMechanism).
		AddInt32(int32(len(clientFirst))).
		AddString(clientFirst).
		Flush(0)

	outs, err := f.HandleClientMessage(firstPayload)
	if err != nil {
		t.Fatalf("handleClientFirst: %v", err)
	}
	r := wire.NewBufferReader(outs[0].Bytes)
	_, _ = r.Byte()
	_, _ = r.Int32()
	_, _ = r.Uint32()
	serverFirst := string(r.Rest())

	clientFinalWithoutProof, proofB64, _ := client.finalize(serverFirst, data.SaltB64, data.Iterations)
	clientFinal := clientFinalWithoutProof + ",p=" + proofB64
	finalPayload := wire.NewBufferWriter().AddString(clientFinal).Flush(0)

	outs, err = f.HandleClientMessage(finalPayload)
	if err != nil {
		t.Fatalf("handleClientFinal: %v", err)
	}
	if len(outs) != 2 || !outs[1].Close {
		t.Fatalf("expected error bytes followed by close, got %+v", outs)
	}
}

// TestScramFlowRejectsShortProof guards against a client-final message
// whose p= proof decodes to fewer bytes than the 32-byte client signature
// it's XORed against — a malformed/empty proof must fail cleanly, never
// panic with an index out of range.
func TestScramFlowRejectsShortProof(t *testing.T) {
	data, err := CreateScramData("s3cret", 4096)
	if err != nil {
		t.Fatalf("CreateScramData: %v", err)
	}
	client := scramClient{password: "s3cret", nonce: "rOprNGfwEbeRWgbNEkqO"}
	clientFirst := client.clientFirstMessage()
	firstPayload := wire.NewBufferWriter().
		AddCString(scramMechanism).
		AddInt32(int32(len(clientFirst))).
		AddString(clientFirst).
		Flush(0)

	for _, proof := range []string{"", "AA==", "QQ=="} {
		f := NewScramFlow("user", data)
		_, _ = f.InitialMessage()

		outs, err := f.HandleClientMessage(firstPayload)
		if err != nil {
			t.Fatalf("handleClientFirst: %v", err)
		}
		r := wire.NewBufferReader(outs[0].Bytes)
		_, _ = r.Byte()
		_, _ = r.Int32()
		_, _ = r.Uint32()
		serverFirst := string(r.Rest())

		clientFinalWithoutProof, _, _ := client.finalize(serverFirst, data.SaltB64, data.Iterations)
		clientFinal := clientFinalWithoutProof + ",p=" + proof
		finalPayload := wire.NewBufferWriter().AddString(clientFinal).Flush(0)

		outs, err = f.HandleClientMessage(finalPayload)
		if err != nil {
			t.Fatalf("handleClientFinal with proof %q: %v", proof, err)
		}
		if len(outs) != 2 || !outs[1].Close {
			t.Fatalf("expected error bytes followed by close for proof %q, got %+v", proof, outs)
		}
	}
}

func TestCreateScramDataProducesFreshSaltPerCall(t *testing.T) {
	a, err := CreateScramData("s3cret", 4096)
	if err != nil {
		t.Fatalf("CreateScramData: %v", err)
	}
	b, err := CreateScramData("s3cret", 4096)
	if err != nil {
		t.Fatalf("CreateScramData: %v", err)
	}
	if a.SaltB64 == b.SaltB64 {
		t.Fatal("expected distinct random salts across calls")
	}
}
