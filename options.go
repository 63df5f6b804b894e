package pggateway

import (
	"context"
	"log/slog"

	"github.com/supabase-community/pg-gateway/internal/metrics"
	"github.com/supabase-community/pg-gateway/internal/tlsupgrade"
)

// ServerVersionProvider resolves the value reported in the post-auth
// ParameterStatus "server_version" message (§4.4.3). It is async-capable
// because some consumers derive the version from a backend they proxy to.
type ServerVersionProvider func(ctx context.Context) (string, error)

// StaticServerVersion returns a ServerVersionProvider that always yields v.
func StaticServerVersion(v string) ServerVersionProvider {
	return func(ctx context.Context) (string, error) { return v, nil }
}

type options struct {
	auth      AuthMethod
	upgrader  tlsupgrade.Upgrader
	serverVer ServerVersionProvider
	hooks     Hooks
	logger    *slog.Logger
	metrics   *metrics.Collector
}

func defaultOptions() *options {
	return &options{
		auth:   TrustAuth(),
		logger: slog.Default(),
	}
}

// Option configures a Conn. See NewConn.
type Option func(*options)

// WithAuth selects the authentication method a Conn enforces at startup.
// Defaults to TrustAuth when not set.
func WithAuth(method AuthMethod) Option {
	return func(o *options) { o.auth = method }
}

// WithTLSConfig installs the Upgrader used to satisfy client SSLRequests.
// When unset, SSLRequest is always answered 'N' (TLS not configured).
func WithTLSConfig(upgrader tlsupgrade.Upgrader) Option {
	return func(o *options) { o.upgrader = upgrader }
}

// WithServerVersion configures the server_version ParameterStatus emitted
// once authentication completes (§4.4.3). Omitted entirely if unset.
func WithServerVersion(v ServerVersionProvider) Option {
	return func(o *options) { o.serverVer = v }
}

// WithHooks installs the lifecycle callbacks described in hooks.go.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithLogger overrides the structured logger used for connection-lifecycle
// diagnostics. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics attaches a metrics.Collector the connection reports auth,
// TLS, and error counters to. Omitted entirely if unset.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}
