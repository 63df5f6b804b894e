// Package pggateway implements the server side of the PostgreSQL v3
// frontend/backend wire protocol as an embeddable library: wire framing,
// TLS upgrade, authentication, and a hook-driven query surface, with no
// backend database of its own. A consumer wires Conn into whatever engine
// answers queries — an in-process SQL engine, a cache, or (via Detach) a
// real upstream Postgres it proxies to.
//
// The connection engine here plays the server role of the exchange the
// teacher's proxy/postgres.go plays as a man-in-the-middle: where
// PostgresHandler.Handle relays a real client's handshake through to a
// real backend, Conn terminates that same handshake itself.
package pggateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/supabase-community/pg-gateway/internal/auth"
	"github.com/supabase-community/pg-gateway/internal/wire"
)

// outputItem is one item in the lazy response sequence a handler step
// yields, per §4.4's "Response pipeline": either bytes to write verbatim,
// a signal to close the connection after flushing, or a signal to perform
// the TLS upgrade and resume on the upgraded stream. Represented as a
// bounded slice rather than a channel/iterator — see SPEC_FULL.md's
// "Lazy-sequence representation" design note.
type outputItem struct {
	bytes      []byte
	close      bool
	tlsUpgrade bool
}

// Conn drives one PostgreSQL wire-protocol session over conn: framing,
// optional TLS upgrade, authentication, and (once ready) query dispatch to
// the configured hooks.
type Conn struct {
	conn net.Conn
	opts *options

	buf      wire.Buffer
	state    connState
	authFlow auth.Flow

	detached bool
}

// NewConn constructs a Conn ready to drive conn. No I/O happens until
// Serve is called.
func NewConn(conn net.Conn, opts ...Option) *Conn {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Conn{conn: conn, opts: o}
}

// State returns a read-only snapshot of the connection's current state.
func (c *Conn) State() State {
	return c.state.snapshot()
}

// Detach stops the engine from reading or writing conn and returns the
// live (possibly TLS-upgraded) connection to the caller. Per §5's detach
// contract, any bytes still sitting in the internal message buffer are
// discarded — detaching mid-message is the caller's responsibility to
// avoid (the documented safe point is immediately after OnAuthenticated,
// or any time once State().Step is StepReadyForQuery).
func (c *Conn) Detach() net.Conn {
	c.detached = true
	if c.opts.metrics != nil {
		c.opts.metrics.RecordDetach()
	}
	return c.conn
}

// Serve reads and drives the connection until it closes, the client
// disconnects, a protocol violation aborts the session, or Detach is
// called. A clean client-initiated close (Terminate, or EOF) returns nil.
func (c *Conn) Serve(ctx context.Context) error {
	logger := c.opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	if c.opts.metrics != nil {
		c.opts.metrics.ConnectionStarted()
		defer func() { c.opts.metrics.ConnectionEnded(c.state.isAuthenticated) }()
	}

	// Detach hands the live conn to the caller; every other exit path —
	// clean EOF, a hook error, or a protocol violation — means this engine
	// owns the conn to the end and must close it rather than leak the
	// socket (writeFatal and drain's CloseSignal path already close on
	// their own, so this is a harmless no-op there).
	defer func() {
		if !c.detached {
			_ = c.conn.Close()
		}
	}()

	chunk := make([]byte, 64*1024)
	for {
		if c.detached {
			return nil
		}

		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.buf.Feed(chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("pggateway: reading connection: %w", err)
		}

		for !c.detached {
			msg, ok, perr := c.buf.Next(c.state.hasStarted)
			if perr != nil {
				c.recordLoopError("protocol_violation")
				c.writeFatal(wire.SQLStateProtocolViolation, perr.Error())
				return perr
			}
			if !ok {
				break
			}

			items, herr := c.dispatch(ctx, msg)
			if herr != nil {
				c.recordLoopError("hook")
				logger.Error("pggateway: aborting connection", "error", herr)
				return herr
			}

			if err := c.drain(ctx, items); err != nil {
				c.recordLoopError("io")
				return err
			}
			if c.detached {
				return nil
			}
			for _, item := range items {
				if item.close {
					// drain has already closed the conn; the session is over.
					return nil
				}
			}
		}
	}
}

// drain writes each item's bytes in order and performs the close/TLS
// control signals, per §4.4's "driver writes bytes... on CloseSignal it
// flushes, closes... on TlsUpgradeSignal it returns from the current
// driver loop" contract.
func (c *Conn) drain(ctx context.Context, items []outputItem) error {
	for _, item := range items {
		if len(item.bytes) > 0 {
			if _, err := c.conn.Write(item.bytes); err != nil {
				return fmt.Errorf("pggateway: writing response: %w", err)
			}
		}
		if item.tlsUpgrade {
			if err := c.upgradeTLS(ctx); err != nil {
				return err
			}
		}
		if item.close {
			_ = c.conn.Close()
			return nil
		}
	}
	return nil
}

func (c *Conn) upgradeTLS(ctx context.Context) error {
	start := time.Now()
	upgraded, state, err := c.opts.upgrader.Upgrade(c.conn)
	if err != nil {
		if c.opts.metrics != nil {
			c.opts.metrics.ObserveTLSHandshake("failure", time.Since(start))
		}
		return fmt.Errorf("pggateway: TLS upgrade: %w", err)
	}
	if c.opts.metrics != nil {
		c.opts.metrics.ObserveTLSHandshake("success", time.Since(start))
	}

	c.conn = upgraded
	c.state.tlsInfo = &TLSInfo{
		ServerName:      state.ServerName,
		ConnectionState: state,
	}
	if len(state.PeerCertificates) > 0 {
		c.state.tlsInfo.PeerCertificateRaw = state.PeerCertificates[0].Raw
	}
	c.buf.Reset()
	c.state.hasStarted = false
	c.state.step = StepAwaitingInitialMessage

	if c.opts.hooks.OnTLSUpgrade != nil {
		c.opts.hooks.OnTLSUpgrade(ctx, c.state.snapshot())
	}
	return nil
}

func (c *Conn) recordLoopError(kind string) {
	if c.opts.metrics != nil {
		c.opts.metrics.RecordMessageLoopError(kind)
	}
}

// writeFatal is used for engine-detected protocol errors that occur
// outside the normal dispatch/outputItem pipeline (framing failures).
func (c *Conn) writeFatal(code, message string) {
	encoded, err := wire.EncodeError(wire.ErrorFields{
		Severity: "FATAL",
		Code:     code,
		Message:  message,
	})
	if err != nil {
		return
	}
	_, _ = c.conn.Write(encoded)
	_ = c.conn.Close()
}

func fatalItems(code, message string) ([]outputItem, error) {
	encoded, err := wire.EncodeError(wire.ErrorFields{
		Severity: "FATAL",
		Code:     code,
		Message:  message,
	})
	if err != nil {
		return nil, err
	}
	return []outputItem{{bytes: encoded}, {close: true}}, nil
}
