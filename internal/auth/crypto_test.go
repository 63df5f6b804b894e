package auth

import "testing"

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual([]byte("abc"), []byte("abc")) {
		t.Fatal("expected equal byte slices to compare equal")
	}
	if constantTimeEqual([]byte("abc"), []byte("abd")) {
		t.Fatal("expected differing byte slices to compare unequal")
	}
}

func TestXorBytes(t *testing.T) {
	a := []byte{0x0f, 0xf0}
	b := []byte{0xff, 0x0f}
	got := xorBytes(a, b)
	want := []byte{0xf0, 0xff}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("xorBytes mismatch at %d: got %x want %x", i, got[i], want[i])
		}
	}
}

func TestComputeMD5PasswordFromPreHashedMatchesReferenceFormula(t *testing.T) {
	preHashed := hexMD5("s3cret" + "postgres")
	salt := []byte{1, 2, 3, 4}
	got := computeMD5PasswordFromPreHashed(preHashed, salt)
	if got[:3] != "md5" {
		t.Fatalf("expected md5-prefixed hash, got %q", got)
	}
	if len(got) != 35 { // "md5" + 32 hex chars
		t.Fatalf("expected 35-char hash, got %d: %q", len(got), got)
	}
	if want := "md5" + hexMD5(preHashed+string(salt)); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCreateScramDataDefaultsIterations(t *testing.T) {
	data, err := CreateScramData("s3cret", 0)
	if err != nil {
		t.Fatalf("CreateScramData: %v", err)
	}
	if data.Iterations != 4096 {
		t.Fatalf("expected default 4096 iterations, got %d", data.Iterations)
	}
}
