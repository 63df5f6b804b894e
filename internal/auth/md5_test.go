package auth

import (
	"testing"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

func TestMD5FlowAccepts(t *testing.T) {
	f, err := NewMD5Flow("postgres", "s3cret")
	if err != nil {
		t.Fatalf("NewMD5Flow: %v", err)
	}

	im, err := f.InitialMessage()
	if err != nil {
		t.Fatalf("InitialMessage: %v", err)
	}
	r := wire.NewBufferReader(im)
	_, _ = r.Byte()
	_, _ = r.Int32()
	subtype, _ := r.Uint32()
	if subtype != wire.AuthMD5Password {
		t.Fatalf("expected AuthMD5Password subtype, got %d", subtype)
	}
	salt, err := r.Bytes(4)
	if err != nil {
		t.Fatalf("reading salt: %v", err)
	}

	// Reproduce the client-side derivation independently, matching the
	// formula PostgreSQL clients (and the teacher's pool.go
	// computeMD5Password) use.
	preHashed := hexMD5("s3cret" + "postgres")
	clientHash := computeMD5PasswordFromPreHashed(preHashed, salt)

	payload := wire.NewBufferWriter().AddCString(clientHash).Flush(0)
	outs, err := f.HandleClientMessage(payload)
	if err != nil {
		t.Fatalf("HandleClientMessage: %v", err)
	}
	if len(outs) != 0 {
		t.Fatalf("expected no output on success (the engine emits AuthenticationOk), got %+v", outs)
	}
	if !f.Completed() {
		t.Fatal("expected Completed after one round trip")
	}
}

func TestMD5FlowRejectsWrongPassword(t *testing.T) {
	f, err := NewMD5Flow("postgres", "s3cret")
	if err != nil {
		t.Fatalf("NewMD5Flow: %v", err)
	}
	_, _ = f.InitialMessage()

	payload := wire.NewBufferWriter().AddCString("md5deadbeef").Flush(0)
	outs, err := f.HandleClientMessage(payload)
	if err != nil {
		t.Fatalf("HandleClientMessage: %v", err)
	}
	if len(outs) != 2 || !outs[1].Close {
		t.Fatalf("expected error bytes followed by close, got %+v", outs)
	}
}
