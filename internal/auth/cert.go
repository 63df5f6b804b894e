package auth

import (
	"crypto/x509"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

// CertFlow implements the Client Certificate method (§4.5.5): authentication
// is decided entirely from the TLS handshake's peer certificate, captured by
// internal/tlsupgrade before the flow is even constructed, so there is never
// a client round-trip at the wire-protocol level — only a pass/fail verdict
// folded into InitialMessage.
type CertFlow struct {
	done bool
	err  error
}

// NewCertFlow compares expectedUsername against peerCert's Subject Common
// Name using a constant-time comparison, matching the CN-vs-username check
// bzero's db certificate plugin performs for DB proxy client-cert auth.
func NewCertFlow(expectedUsername string, peerCert *x509.Certificate) *CertFlow {
	f := &CertFlow{done: true}
	if peerCert == nil {
		f.err = fatal(wire.SQLStateConnectionException, "client certificate is invalid")
		return f
	}
	if !constantTimeEqual([]byte(peerCert.Subject.CommonName), []byte(expectedUsername)) {
		f.err = fatal(wire.SQLStateConnectionException, "client certificate is invalid")
	}
	return f
}

// InitialMessage never sends bytes of its own — success or failure is
// already decided at construction time from the captured peer certificate.
// A non-nil error here is always a *FailureError; the engine completes
// authentication itself (§4.4.3) when err is nil.
func (f *CertFlow) InitialMessage() ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func (f *CertFlow) HandleClientMessage(payload []byte) ([]Output, error) {
	return nil, nil
}

func (f *CertFlow) Completed() bool {
	return f.done
}
