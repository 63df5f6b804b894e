// Package auth implements the server side of each PostgreSQL authentication
// method as a small state machine: Trust, Cleartext Password, MD5, SCRAM-
// SHA-256, and Client Certificate. Each flow is grounded in the client-side
// mirror of the same exchange in the teacher's pool/scram.go and pool.go
// (computeMD5Password, authenticatePG), inverted to play the server role.
package auth

import "github.com/supabase-community/pg-gateway/internal/wire"

// Output is one item in the lazy response sequence a Flow yields when
// handling a client message: either bytes to send verbatim, or a signal
// that the connection should close after any preceding bytes are flushed.
type Output struct {
	Bytes []byte
	Close bool
}

// Flow is the common contract every authentication method satisfies,
// matching §4.5's "create_initial_auth_message / handle_client_message /
// is_completed" state-machine shape. Representing each method as a small
// struct behind this interface (rather than a class hierarchy) is the
// "polymorphism over auth methods" design note from §9.
type Flow interface {
	// InitialMessage returns the first backend frame for this method, or
	// nil if the method completes without sending one (Trust, Client
	// Certificate). An error here means the method already knows it has
	// failed before any client round-trip — the engine frames it the same
	// way it frames a HandleClientMessage failure.
	InitialMessage() ([]byte, error)

	// HandleClientMessage consumes one client Password-tagged message and
	// yields the resulting output sequence.
	HandleClientMessage(payload []byte) ([]Output, error)

	// Completed reports whether authentication has finished (successfully
	// or not — a failed flow is also "completed" in the sense that no
	// further client messages are expected).
	Completed() bool
}

// FailureError carries the structured backend error a Flow wants framed
// and sent to the client before the connection is closed, fulfilling the
// "on failure: emit ErrorResponse FATAL ... then CloseSignal" clauses of
// §4.5.2-§4.5.5.
type FailureError struct {
	Fields wire.ErrorFields
}

func (e *FailureError) Error() string {
	return e.Fields.Message
}

// Encode serializes the failure as a ready-to-send ErrorResponse frame, for
// callers (such as the engine) that receive a *FailureError from
// InitialMessage rather than from HandleClientMessage.
func (e *FailureError) Encode() ([]byte, error) {
	return wire.EncodeError(e.Fields)
}

func fatal(code, message string) *FailureError {
	return &FailureError{Fields: wire.ErrorFields{
		Severity: "FATAL",
		Code:     code,
		Message:  message,
	}}
}

// closeWith frames err (if it is a *FailureError) and returns the output
// sequence §4.5 prescribes: the error bytes followed by CloseSignal. Any
// other error is returned unwrapped for the caller to classify as a
// protocol/transport failure instead.
func closeWith(err error) ([]Output, error) {
	fe, ok := err.(*FailureError)
	if !ok {
		return nil, err
	}
	encoded, encErr := wire.EncodeError(fe.Fields)
	if encErr != nil {
		return nil, encErr
	}
	return []Output{{Bytes: encoded}, {Close: true}}, nil
}
