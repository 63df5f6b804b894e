// Command pgserve is a demo PostgreSQL wire-protocol server built on
// pggateway: it answers every query with a small in-memory catalog instead
// of forwarding to a real database, the same "terminate the protocol, serve
// from somewhere else" pattern a pool-backed gateway would use but without
// a real backend to dial. Its shape (flag-parsed config path, YAML
// hot-reload, signal-based graceful shutdown) is lifted directly from the
// teacher's cmd/dbbouncer/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	pggateway "github.com/supabase-community/pg-gateway"
	"github.com/supabase-community/pg-gateway/cmd/pgserve/admin"
	"github.com/supabase-community/pg-gateway/internal/auth"
	"github.com/supabase-community/pg-gateway/internal/democonfig"
	"github.com/supabase-community/pg-gateway/internal/metrics"
	"github.com/supabase-community/pg-gateway/internal/tlsupgrade"
)

func main() {
	configPath := flag.String("config", "configs/pgserve.yaml", "path to configuration file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("pgserve starting...")

	cfg, err := democonfig.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Configuration loaded from %s (auth mode: %s)", *configPath, cfg.Auth.Mode)

	m := metrics.New()

	var upgrader tlsupgrade.Upgrader
	if cfg.Listen.TLSEnabled() {
		cert, err := tlsupgrade.LoadCertificate(cfg.Listen.TLSCert, cfg.Listen.TLSKey)
		if err != nil {
			log.Fatalf("Failed to load TLS certificate: %v", err)
		}
		du := tlsupgrade.NewDefaultUpgrader(cert)
		if cfg.Listen.RequireClientCert {
			du.WithClientCert()
		}
		upgrader = du
	}

	authMethod := buildAuthMethod(cfg)

	ln, err := net.Listen("tcp", cfg.Listen.Address)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Listen.Address, err)
	}
	log.Printf("pgserve listening on %s", cfg.Listen.Address)

	go acceptLoop(ln, cfg, authMethod, upgrader, m)

	adminServer := admin.NewServer(m, *cfg)
	if err := adminServer.Start(cfg.Listen.AdminAddress); err != nil {
		log.Fatalf("Failed to start admin server: %v", err)
	}

	configWatcher, err := democonfig.NewWatcher(*configPath, func(newCfg *democonfig.Config) {
		log.Printf("Reloading configuration...")
		adminServer.UpdateConfig(*newCfg)
	})
	if err != nil {
		log.Printf("Warning: config hot-reload not available: %v", err)
	}

	log.Printf("pgserve ready - PG:%s admin:%s", cfg.Listen.Address, cfg.Listen.AdminAddress)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %s, shutting down...", sig)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	ln.Close()
	adminServer.Stop()

	log.Printf("pgserve stopped")
}

func acceptLoop(ln net.Listener, cfg *democonfig.Config, authMethod pggateway.AuthMethod, upgrader tlsupgrade.Upgrader, m *metrics.Collector) {
	for {
		clientConn, err := ln.Accept()
		if err != nil {
			if opErr, ok := err.(*net.OpError); ok && opErr.Err.Error() == "use of closed network connection" {
				return
			}
			log.Printf("accept: %v", err)
			continue
		}
		go serveConn(clientConn, cfg, authMethod, upgrader, m)
	}
}

func serveConn(clientConn net.Conn, cfg *democonfig.Config, authMethod pggateway.AuthMethod, upgrader tlsupgrade.Upgrader, m *metrics.Collector) {
	opts := []pggateway.Option{
		pggateway.WithAuth(authMethod),
		pggateway.WithServerVersion(pggateway.StaticServerVersion(cfg.ServerVersion)),
		pggateway.WithMetrics(m),
		pggateway.WithHooks(pggateway.Hooks{OnQuery: serveCatalogQuery}),
	}
	if upgrader != nil {
		opts = append(opts, pggateway.WithTLSConfig(upgrader))
	}

	conn := pggateway.NewConn(clientConn, opts...)
	if err := conn.Serve(context.Background()); err != nil {
		log.Printf("connection from %s: %v", clientConn.RemoteAddr(), err)
	}
}

// serveCatalogQuery answers every query with pgserve's version string,
// enough to prove a client (e.g. psql) can complete a full round trip
// without a real backend behind it.
func serveCatalogQuery(ctx context.Context, query string, st pggateway.State) (pggateway.QueryResult, error) {
	return pggateway.QueryResult{{
		Command: "SELECT",
		Fields: []pggateway.FieldDescription{
			{Name: "version", DataTypeOID: 25, DataTypeSize: -1, TypeModifier: -1},
		},
		Rows: []pggateway.Row{
			{"version": []byte("pgserve (pggateway demo)")},
		},
	}}, nil
}

func buildAuthMethod(cfg *democonfig.Config) pggateway.AuthMethod {
	switch cfg.Auth.Mode {
	case democonfig.AuthModePassword:
		return pggateway.PasswordAuth(func(ctx context.Context, username string) (string, error) {
			u, ok := cfg.Users[username]
			if !ok {
				return "", fmt.Errorf("unknown user %q", username)
			}
			return u.Password, nil
		})
	case democonfig.AuthModeMD5:
		return pggateway.MD5Auth(func(ctx context.Context, username string) (string, error) {
			u, ok := cfg.Users[username]
			if !ok {
				return "", fmt.Errorf("unknown user %q", username)
			}
			return u.PreHashed, nil
		})
	case democonfig.AuthModeScram:
		return pggateway.ScramAuth(func(ctx context.Context, username string) (auth.ScramData, error) {
			u, ok := cfg.Users[username]
			if !ok {
				return auth.ScramData{}, fmt.Errorf("unknown user %q", username)
			}
			return auth.ScramData{
				SaltB64:      u.SaltB64,
				Iterations:   u.Iterations,
				StoredKeyB64: u.StoredKeyB64,
				ServerKeyB64: u.ServerKeyB64,
			}, nil
		})
	case democonfig.AuthModeCert:
		return pggateway.CertAuth()
	default:
		return pggateway.TrustAuth()
	}
}
