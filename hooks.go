package pggateway

import "context"

// FieldDescription is one column of a RowDescription, per §4.4.4's field
// tuple: name, table OID, column attribute number, type OID, type size,
// type modifier, and format code (0=text, 1=binary).
type FieldDescription struct {
	Name         string
	TableOID     uint32
	ColumnID     int16
	DataTypeOID  uint32
	DataTypeSize int16
	TypeModifier int32
	Format       int16
}

// Row is one result row, keyed by column name so CommandResult.Rows can be
// built without regard to FieldDescription ordering — the engine looks up
// each field's value by name when building a DataRow, per §4.4.4.
type Row map[string][]byte

// CommandResult is one item in the lazy sequence an OnQuery hook yields.
// A CommandResult with a nil Fields is an exec-only command (emits only
// CommandComplete); one with Fields set is a query command (emits
// RowDescription, one DataRow per Rows entry, then CommandComplete).
type CommandResult struct {
	Command      string
	Fields       []FieldDescription
	Rows         []Row
	AffectedRows *int64 // overrides the iterated row count when set
}

// QueryResult is the full lazy sequence of command responses an OnQuery
// hook returns. A nil or empty QueryResult means "no result" — the engine
// emits EmptyQueryResponse instead of iterating, per §4.4.4.
type QueryResult []CommandResult

// MessageResult is what an OnMessage hook returns to take over built-in
// message processing. A MessageResult with no Blobs (nil or empty) means
// "continue built-in processing" — otherwise the blobs are sent verbatim and
// built-in handling for that message is skipped, per §4.4.5.
type MessageResult struct {
	Blobs [][]byte
}

// Hooks are the consumer-supplied callbacks invoked at each point in the
// connection lifecycle (§4.4.5, §6). Every hook is optional; a nil hook is
// simply skipped.
type Hooks struct {
	// OnTLSUpgrade fires once the TLS handshake completes successfully.
	OnTLSUpgrade func(ctx context.Context, st State)

	// OnStartup fires after the StartupMessage is parsed and client_params
	// is populated, before auth method selection. Returning a
	// *BackendError aborts the connection with that error framed and sent.
	OnStartup func(ctx context.Context, st State) error

	// OnAuthenticated fires once authentication completes successfully,
	// before AuthenticationOk is written.
	OnAuthenticated func(ctx context.Context, st State)

	// OnMessage fires for every inbound message, including the initial
	// frame, before any built-in reaction. See MessageResult.
	OnMessage func(ctx context.Context, data []byte, st State) (MessageResult, error)

	// OnQuery fires for each Query ('Q') message once the connection is
	// ReadyForQuery. A nil OnQuery means queries are never executed (no
	// response is sent at all, per §4.4.4).
	OnQuery func(ctx context.Context, query string, st State) (QueryResult, error)
}
