package pggateway

import (
	"context"
	"crypto/x509"
	"fmt"

	"github.com/supabase-community/pg-gateway/internal/auth"
	"github.com/supabase-community/pg-gateway/internal/wire"
)

// AuthMethod builds the per-connection auth.Flow for a given username, per
// §4.4.2's "instantiate the matching auth flow" step. It is the tagged-
// variant-over-an-interface shape the teacher's pool.go's auth dispatch
// loosely implies but never formalizes — here made explicit so new methods
// can be added without touching the engine.
type AuthMethod interface {
	// Name identifies the method for metrics and error messages (e.g.
	// "trust", "password", "md5", "scram-sha-256", "cert").
	Name() string

	// NewFlow constructs the Flow for this connection. tlsInfo is nil
	// unless a TLS upgrade has already completed; CertAuth requires it.
	NewFlow(ctx context.Context, username string, tlsInfo *TLSInfo) (auth.Flow, error)
}

type trustMethod struct{}

// TrustAuth accepts every client unconditionally (§4.5.1).
func TrustAuth() AuthMethod { return trustMethod{} }

func (trustMethod) Name() string { return "trust" }

func (trustMethod) NewFlow(ctx context.Context, username string, tlsInfo *TLSInfo) (auth.Flow, error) {
	return auth.NewTrustFlow(), nil
}

// PasswordLookup resolves the expected cleartext password for a username.
type PasswordLookup func(ctx context.Context, username string) (string, error)

type passwordMethod struct {
	lookup PasswordLookup
}

// PasswordAuth implements Cleartext Password auth (§4.5.2): lookup returns
// the expected plaintext password for the connecting user.
func PasswordAuth(lookup PasswordLookup) AuthMethod {
	return passwordMethod{lookup: lookup}
}

func (passwordMethod) Name() string { return "password" }

func (m passwordMethod) NewFlow(ctx context.Context, username string, tlsInfo *TLSInfo) (auth.Flow, error) {
	expected, err := m.lookup(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("pggateway: looking up cleartext password: %w", err)
	}
	return auth.NewPasswordFlow(username, expected), nil
}

// PreHashedPasswordLookup resolves hex(md5(password+username)) for a user,
// the same pre-hashed form the teacher's pool.go stores instead of a raw
// password, so plaintext passwords never need to sit in the lookup store.
type PreHashedPasswordLookup func(ctx context.Context, username string) (string, error)

type md5Method struct {
	lookup PreHashedPasswordLookup
}

// MD5Auth implements MD5 Password auth (§4.5.3).
func MD5Auth(lookup PreHashedPasswordLookup) AuthMethod {
	return md5Method{lookup: lookup}
}

func (md5Method) Name() string { return "md5" }

func (m md5Method) NewFlow(ctx context.Context, username string, tlsInfo *TLSInfo) (auth.Flow, error) {
	preHashed, err := m.lookup(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("pggateway: looking up pre-hashed password: %w", err)
	}
	return auth.NewMD5FlowFromPreHashed(username, preHashed)
}

// ScramDataLookup resolves the stored SCRAM verifier for a username,
// normally produced ahead of time by auth.CreateScramData.
type ScramDataLookup func(ctx context.Context, username string) (auth.ScramData, error)

type scramMethod struct {
	lookup ScramDataLookup
}

// ScramAuth implements SCRAM-SHA-256 auth (§4.5.4).
func ScramAuth(lookup ScramDataLookup) AuthMethod {
	return scramMethod{lookup: lookup}
}

func (scramMethod) Name() string { return "scram-sha-256" }

func (m scramMethod) NewFlow(ctx context.Context, username string, tlsInfo *TLSInfo) (auth.Flow, error) {
	data, err := m.lookup(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("pggateway: looking up SCRAM data: %w", err)
	}
	return auth.NewScramFlow(username, data), nil
}

type certMethod struct{}

// CertAuth implements Client Certificate auth (§4.5.5): the username must
// match the TLS peer certificate's Subject Common Name. Requires the
// connection to have already upgraded to TLS with client-cert capture
// enabled (tlsupgrade.DefaultUpgrader.WithClientCert).
func CertAuth() AuthMethod { return certMethod{} }

func (certMethod) Name() string { return "cert" }

func (certMethod) NewFlow(ctx context.Context, username string, tlsInfo *TLSInfo) (auth.Flow, error) {
	if tlsInfo == nil {
		return certFailureFlow{message: "ssl connection required when auth mode is 'certificate'"}, nil
	}
	var peerCert *x509.Certificate
	if len(tlsInfo.ConnectionState.PeerCertificates) > 0 {
		peerCert = tlsInfo.ConnectionState.PeerCertificates[0]
	}
	if peerCert == nil {
		return certFailureFlow{message: "client certificate required"}, nil
	}
	return auth.NewCertFlow(username, peerCert), nil
}

// certFailureFlow reports the §4.5.5 preconditions (tls_info populated,
// client certificate present) that auth.CertFlow itself doesn't check
// because it is only ever constructed once those preconditions hold.
type certFailureFlow struct {
	message string
}

func (f certFailureFlow) InitialMessage() ([]byte, error) {
	return nil, &auth.FailureError{Fields: wire.ErrorFields{
		Severity: "FATAL",
		Code:     wire.SQLStateConnectionException,
		Message:  f.message,
	}}
}

func (f certFailureFlow) HandleClientMessage(payload []byte) ([]auth.Output, error) {
	return nil, nil
}

func (f certFailureFlow) Completed() bool { return true }
