package pggateway

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/supabase-community/pg-gateway/internal/auth"
	"github.com/supabase-community/pg-gateway/internal/wire"
)

// dispatch runs the on_message hook (§4.4.5) and then, unless the hook took
// over, routes msg through the state machine table in §4.4.
func (c *Conn) dispatch(ctx context.Context, msg wire.Message) ([]outputItem, error) {
	isStartupCandidate := c.state.step == StepAwaitingInitialMessage && msg.Code == 0 && !isSSLRequest(msg.Payload)

	if c.opts.hooks.OnMessage != nil {
		result, err := c.opts.hooks.OnMessage(ctx, msg.Payload, c.state.snapshot())
		if err != nil {
			if be, ok := err.(*BackendError); ok {
				return fatalItemsFromBackendError(be)
			}
			return nil, err
		}
		if len(result.Blobs) > 0 {
			if isStartupCandidate {
				c.state.hasStarted = true
			}
			items := make([]outputItem, 0, len(result.Blobs))
			for _, b := range result.Blobs {
				items = append(items, outputItem{bytes: b})
			}
			return items, nil
		}
	}

	switch c.state.step {
	case StepAwaitingInitialMessage:
		return c.handleInitial(ctx, msg)
	case StepPerformingAuthentication:
		return c.handleAuthMessage(ctx, msg)
	case StepReadyForQuery:
		return c.handleReady(ctx, msg)
	default:
		return nil, fmt.Errorf("pggateway: unreachable step %v", c.state.step)
	}
}

func isSSLRequest(payload []byte) bool {
	if len(payload) < 4 {
		return false
	}
	return binary.BigEndian.Uint32(payload[:4]) == wire.SSLRequestCode
}

func fatalItemsFromBackendError(be *BackendError) ([]outputItem, error) {
	encoded, err := wire.EncodeError(be.fields())
	if err != nil {
		return nil, err
	}
	return []outputItem{{bytes: encoded}, {close: true}}, nil
}

// handleInitial implements the AwaitingInitialMessage row of §4.4's state
// table: SSLRequest (§4.4.1), StartupMessage (§4.4.2), or an unexpected
// codeless frame.
func (c *Conn) handleInitial(ctx context.Context, msg wire.Message) ([]outputItem, error) {
	if msg.Code != 0 {
		return fatalItems(wire.SQLStateProtocolViolation, "unexpected initial message")
	}
	if len(msg.Payload) < 4 {
		return fatalItems(wire.SQLStateProtocolViolation, "unexpected initial message")
	}

	if isSSLRequest(msg.Payload) {
		return c.handleSSLRequest()
	}
	return c.handleStartupMessage(ctx, msg.Payload)
}

// handleSSLRequest implements §4.4.1.
func (c *Conn) handleSSLRequest() ([]outputItem, error) {
	if c.opts.upgrader == nil {
		return []outputItem{{bytes: []byte{'N'}}}, nil
	}
	return []outputItem{
		{bytes: []byte{'S'}},
		{tlsUpgrade: true},
	}, nil
}

// handleStartupMessage implements §4.4.2.
func (c *Conn) handleStartupMessage(ctx context.Context, payload []byte) ([]outputItem, error) {
	r := wire.NewBufferReader(payload)
	version, err := r.Uint32()
	if err != nil {
		return fatalItems(wire.SQLStateConnectionException, "malformed startup message")
	}
	wantVersion := uint32(wire.ProtoVersionMajor)<<16 | uint32(wire.ProtoVersionMinor)
	if version != wantVersion {
		return fatalItems(wire.SQLStateConnectionException, "unsupported protocol version")
	}

	if c.opts.upgrader != nil && c.state.tlsInfo == nil {
		return fatalItems(wire.SQLStateProtocolViolation, "SSL connection is required")
	}

	params := map[string]string{}
	for {
		key, err := r.CString()
		if err != nil {
			return fatalItems(wire.SQLStateConnectionException, "malformed startup message")
		}
		if key == "" {
			break
		}
		val, err := r.CString()
		if err != nil {
			return fatalItems(wire.SQLStateConnectionException, "malformed startup message")
		}
		params[key] = val
	}

	username, ok := params["user"]
	if !ok {
		return fatalItems(wire.SQLStateConnectionException, `missing required parameter "user"`)
	}
	delete(params, "user")

	c.state.hasStarted = true
	c.state.clientParams = &ClientParams{User: username, Other: params}

	if c.opts.hooks.OnStartup != nil {
		if err := c.opts.hooks.OnStartup(ctx, c.state.snapshot()); err != nil {
			if be, ok := err.(*BackendError); ok {
				return fatalItemsFromBackendError(be)
			}
			return nil, err
		}
	}

	return c.beginAuth(ctx, username)
}

// beginAuth instantiates the configured AuthMethod's Flow and either
// completes authentication immediately (Trust, and Cert on success) or
// emits the flow's initial challenge and waits for the client's reply.
func (c *Conn) beginAuth(ctx context.Context, username string) ([]outputItem, error) {
	method := c.opts.auth
	flow, err := method.NewFlow(ctx, username, c.state.tlsInfo)
	if err != nil {
		return nil, fmt.Errorf("pggateway: constructing auth flow: %w", err)
	}

	initial, ierr := flow.InitialMessage()
	if ierr != nil {
		c.recordAuthResult(method.Name(), false)
		return closeItemsFromAuthError(ierr)
	}

	if flow.Completed() {
		c.recordAuthResult(method.Name(), true)
		items := c.completeAuthentication(ctx)
		if len(initial) > 0 {
			items = append([]outputItem{{bytes: initial}}, items...)
		}
		return items, nil
	}

	c.authFlow = flow
	c.state.step = StepPerformingAuthentication
	var items []outputItem
	if len(initial) > 0 {
		items = append(items, outputItem{bytes: initial})
	}
	return items, nil
}

func closeItemsFromAuthError(err error) ([]outputItem, error) {
	fe, ok := err.(*auth.FailureError)
	if !ok {
		return nil, err
	}
	encoded, encErr := fe.Encode()
	if encErr != nil {
		return nil, encErr
	}
	return []outputItem{{bytes: encoded}, {close: true}}, nil
}

// handleAuthMessage implements the PerformingAuthentication row of §4.4's
// state table, forwarding Password-tagged messages to the active flow.
func (c *Conn) handleAuthMessage(ctx context.Context, msg wire.Message) ([]outputItem, error) {
	if msg.Code != wire.Password {
		return fatalItems(wire.SQLStateProtocolViolation, "unexpected message during authentication")
	}

	outs, err := c.authFlow.HandleClientMessage(msg.Payload)
	if err != nil {
		return nil, err
	}

	items := make([]outputItem, 0, len(outs)+1)
	for _, o := range outs {
		items = append(items, outputItem{bytes: o.Bytes, close: o.Close})
	}

	if c.authFlow.Completed() {
		success := !containsClose(outs)
		c.recordAuthResult(c.opts.auth.Name(), success)
		if success {
			items = append(items, c.completeAuthentication(ctx)...)
		}
	}
	return items, nil
}

func containsClose(outs []auth.Output) bool {
	for _, o := range outs {
		if o.Close {
			return true
		}
	}
	return false
}

func (c *Conn) recordAuthResult(method string, success bool) {
	if c.opts.metrics != nil {
		c.opts.metrics.RecordAuthAttempt(method, success)
	}
}

// completeAuthentication implements §4.4.3.
func (c *Conn) completeAuthentication(ctx context.Context) []outputItem {
	items := []outputItem{{bytes: wire.EncodeAuthRequest(wire.AuthOK, nil)}}

	c.state.isAuthenticated = true
	if c.opts.hooks.OnAuthenticated != nil {
		c.opts.hooks.OnAuthenticated(ctx, c.state.snapshot())
	}

	if c.opts.serverVer != nil {
		if v, err := c.opts.serverVer(ctx); err == nil {
			items = append(items, outputItem{bytes: encodeParameterStatus("server_version", v)})
		}
	}

	c.state.step = StepReadyForQuery
	items = append(items, outputItem{bytes: encodeReadyForQuery(wire.TxStatusIdle)})
	return items
}

// handleReady implements the ReadyForQuery row of §4.4's state table.
func (c *Conn) handleReady(ctx context.Context, msg wire.Message) ([]outputItem, error) {
	switch msg.Code {
	case wire.Terminate:
		return []outputItem{{close: true}}, nil
	case wire.Query:
		return c.handleQuery(ctx, msg.Payload)
	default:
		encoded, err := wire.EncodeError(wire.ErrorFields{
			Severity: "ERROR",
			Code:     wire.SQLStateNotImplemented,
			Message:  "Message code not yet implemented",
		})
		if err != nil {
			return nil, err
		}
		return []outputItem{
			{bytes: encoded},
			{bytes: encodeReadyForQuery(wire.TxStatusIdle)},
		}, nil
	}
}
