package pggateway

import "crypto/tls"

// Step is the connection's position in the startup/auth/query lifecycle,
// per §4.4's state transition table.
type Step int

const (
	StepAwaitingInitialMessage Step = iota
	StepPerformingAuthentication
	StepReadyForQuery
)

func (s Step) String() string {
	switch s {
	case StepAwaitingInitialMessage:
		return "awaiting_initial_message"
	case StepPerformingAuthentication:
		return "performing_authentication"
	case StepReadyForQuery:
		return "ready_for_query"
	default:
		return "unknown"
	}
}

// ClientParams holds the StartupMessage's parsed parameters.
type ClientParams struct {
	User  string
	Other map[string]string
}

// TLSInfo describes a completed TLS upgrade, populated once the engine has
// finished the handshake (§4.6).
type TLSInfo struct {
	ServerName         string
	PeerCertificateRaw []byte
	ConnectionState    tls.ConnectionState
}

// connState is the engine's mutable, exclusively-owned session state
// (§5's "Shared-resource policy": owned by the connection task, never
// shared). State is the read-only view handed to hooks.
type connState struct {
	hasStarted      bool
	isAuthenticated bool
	clientParams    *ClientParams
	tlsInfo         *TLSInfo
	step            Step
}

// State is the read-only snapshot of connState exposed to hooks, matching
// §6/§9's "no mutation from hooks" contract — it is a value type, not a
// pointer into engine-owned memory.
type State struct {
	HasStarted      bool
	IsAuthenticated bool
	ClientParams    *ClientParams
	TLSInfo         *TLSInfo
	Step            Step
}

func (s *connState) snapshot() State {
	return State{
		HasStarted:      s.hasStarted,
		IsAuthenticated: s.isAuthenticated,
		ClientParams:    s.clientParams,
		TLSInfo:         s.tlsInfo,
		Step:            s.step,
	}
}
