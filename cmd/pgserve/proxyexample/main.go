// Command proxyexample demonstrates using pggateway as a pre-auth gate in
// front of a real PostgreSQL backend: it terminates the wire protocol
// handshake itself (with Trust authentication and no TLS), then — once the
// client reaches ReadyForQuery —
// calls Conn.Detach and relays the raw bytes to an upstream Postgres for the
// rest of the session. This mirrors the bidirectional relay the teacher's
// internal/proxy/handler.go runs after its own (MITM) handshake, except the
// handshake here is terminated by pggateway rather than relayed through.
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net"
	"sync"

	pggateway "github.com/supabase-community/pg-gateway"
)

func main() {
	listenAddr := flag.String("listen", "127.0.0.1:5433", "address to accept client connections on")
	backendAddr := flag.String("backend", "127.0.0.1:5432", "address of the real PostgreSQL server to relay to")
	flag.Parse()

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	log.Printf("proxyexample: gating %s -> %s", *listenAddr, *backendAddr)

	for {
		clientConn, err := ln.Accept()
		if err != nil {
			log.Printf("accept: %v", err)
			continue
		}
		go handle(clientConn, *backendAddr)
	}
}

func handle(clientConn net.Conn, backendAddr string) {
	ctx := context.Background()

	// Detaching from OnAuthenticated makes Serve return right after it has
	// written AuthenticationOk and ReadyForQuery for the startup message.
	var conn *pggateway.Conn
	conn = pggateway.NewConn(clientConn,
		pggateway.WithAuth(pggateway.TrustAuth()),
		pggateway.WithHooks(pggateway.Hooks{
			OnAuthenticated: func(ctx context.Context, st pggateway.State) { conn.Detach() },
		}),
	)
	if err := conn.Serve(ctx); err != nil {
		log.Printf("proxyexample: handshake failed for %s: %v", clientConn.RemoteAddr(), err)
		return
	}

	if conn.State().Step != pggateway.StepReadyForQuery {
		// Client disconnected, or the connection was closed (fatal error)
		// during the handshake — nothing left to relay.
		return
	}

	// Detach hands back the raw (possibly TLS-upgraded) client connection.
	// The backend still runs its own handshake — a real deployment would
	// authenticate to it using credentials held server-side, out of the
	// client's view.
	upgraded := conn.Detach()

	backendConn, err := net.Dial("tcp", backendAddr)
	if err != nil {
		log.Printf("proxyexample: dialing backend: %v", err)
		upgraded.Close()
		return
	}

	if err := relay(upgraded, backendConn); err != nil {
		log.Printf("proxyexample: relay error: %v", err)
	}
}

// relay copies data bidirectionally between the client and backend
// connections until either side closes.
func relay(client, backend net.Conn) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := io.Copy(backend, client)
		errCh <- err
		if tc, ok := backend.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		_, err := io.Copy(client, backend)
		errCh <- err
		if tc, ok := client.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()

	err := <-errCh
	wg.Wait()
	client.Close()
	backend.Close()
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}
