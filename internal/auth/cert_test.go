package auth

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

func TestCertFlowAcceptsMatchingCommonName(t *testing.T) {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: "alice"}}
	f := NewCertFlow("alice", cert)

	im, err := f.InitialMessage()
	if err != nil {
		t.Fatalf("InitialMessage: %v", err)
	}
	if im != nil {
		t.Fatalf("expected no bytes from a successful CertFlow, got %v", im)
	}
	if !f.Completed() {
		t.Fatal("expected CertFlow to complete immediately")
	}
}

func TestCertFlowRejectsMismatchedCommonName(t *testing.T) {
	cert := &x509.Certificate{Subject: pkix.Name{CommonName: "mallory"}}
	f := NewCertFlow("alice", cert)

	_, err := f.InitialMessage()
	if err == nil {
		t.Fatal("expected error for mismatched common name")
	}
	fe, ok := err.(*FailureError)
	if !ok {
		t.Fatalf("expected *FailureError, got %T", err)
	}
	if fe.Fields.Code != wire.SQLStateConnectionException {
		t.Errorf("expected SQLSTATE %s, got %s", wire.SQLStateConnectionException, fe.Fields.Code)
	}
	if fe.Fields.Message != "client certificate is invalid" {
		t.Errorf("expected message %q, got %q", "client certificate is invalid", fe.Fields.Message)
	}
}

func TestCertFlowRejectsMissingCertificate(t *testing.T) {
	f := NewCertFlow("alice", nil)

	_, err := f.InitialMessage()
	if err == nil {
		t.Fatal("expected error when no client certificate was presented")
	}
}
