package pggateway

import (
	"fmt"

	"github.com/supabase-community/pg-gateway/internal/wire"
)

// BackendError is the structured error a hook (OnStartup, OnMessage,
// OnQuery) returns to have the engine frame and send an ErrorResponse
// before closing the connection, per §4.4.5's "structured BackendError"
// clause.
type BackendError struct {
	Severity string // ERROR, FATAL, or PANIC
	Code     string // SQLSTATE
	Message  string
	Detail   string
	Hint     string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Severity, e.Code, e.Message)
}

func (e *BackendError) fields() wire.ErrorFields {
	severity := e.Severity
	if severity == "" {
		severity = "ERROR"
	}
	return wire.ErrorFields{
		Severity: severity,
		Code:     e.Code,
		Message:  e.Message,
		Detail:   e.Detail,
		Hint:     e.Hint,
	}
}
