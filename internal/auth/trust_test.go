package auth

import "testing"

func TestTrustFlowCompletesWithoutRoundTrip(t *testing.T) {
	f := NewTrustFlow()
	msg, err := f.InitialMessage()
	if err != nil {
		t.Fatalf("InitialMessage: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil initial message, got %v", msg)
	}
	if !f.Completed() {
		t.Fatal("expected Trust to be completed immediately")
	}
}
