package tlsupgrade

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
)

// PeerCertificate returns the leaf certificate the client presented during
// the handshake, or nil if none was requested or offered.
func PeerCertificate(state tls.ConnectionState) *x509.Certificate {
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}

// Upgrader turns a plaintext net.Conn into a TLS net.Conn. The connection
// engine calls it after a client sends an SSLRequest and the engine has
// replied 'S', mirroring the role-reversal of the teacher's negotiateSSL
// (encoredev-encore's pgproxy.go) which performs the same upgrade from the
// client's side against a real backend.
type Upgrader interface {
	Upgrade(conn net.Conn) (net.Conn, tls.ConnectionState, error)
}

// DefaultUpgrader wraps crypto/tls.Server with the options this library's
// consumers actually need: a base config, optional per-SNI certificate
// resolution, and optional client-certificate capture for the Client
// Certificate auth method.
type DefaultUpgrader struct {
	Config            *tls.Config
	RequireClientCert bool
}

// LoadCertificate is a small convenience wrapper around tls.LoadX509KeyPair,
// matching proxy/server.go's NewServer TLS-loading shape.
func LoadCertificate(certFile, keyFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("tlsupgrade: loading certificate: %w", err)
	}
	return cert, nil
}

// NewDefaultUpgrader builds an Upgrader serving cert for every connection,
// with no SNI resolution. Use WithResolver to add SNI-based routing.
func NewDefaultUpgrader(cert tls.Certificate) *DefaultUpgrader {
	return &DefaultUpgrader{
		Config: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}
}

// WithResolver installs an SNIResolver's GetConfigForClient hook, letting a
// single Upgrader serve TLS for multiple virtual hostnames.
func (u *DefaultUpgrader) WithResolver(r *SNIResolver) *DefaultUpgrader {
	u.Config.GetConfigForClient = r.GetConfigForClient(u.Config)
	return u
}

// WithClientCert enables client-certificate capture, required by the
// Client Certificate auth method (§4.5.5). RequestClientCert asks for a
// certificate without rejecting connections that don't present one — the
// auth flow itself decides whether a missing certificate is fatal.
func (u *DefaultUpgrader) WithClientCert() *DefaultUpgrader {
	u.Config.ClientAuth = tls.RequestClientCert
	u.RequireClientCert = true
	return u
}

// Upgrade performs the server-side TLS handshake over conn and returns the
// wrapped connection along with the resulting ConnectionState (SNI,
// negotiated version, and any captured peer certificate).
func (u *DefaultUpgrader) Upgrade(conn net.Conn) (net.Conn, tls.ConnectionState, error) {
	tlsConn := tls.Server(conn, u.Config)
	if err := tlsConn.Handshake(); err != nil {
		return nil, tls.ConnectionState{}, fmt.Errorf("tlsupgrade: handshake: %w", err)
	}
	return tlsConn, tlsConn.ConnectionState(), nil
}
