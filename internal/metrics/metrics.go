// Package metrics exposes per-connection Prometheus instrumentation for a
// pggateway.Conn: authentication outcomes, TLS handshake latency, message
// loop errors, and detach events. It is adapted from the teacher's
// tenant/pool-shaped Collector (internal/metrics/metrics.go) down to the
// concerns a single embedded connection actually has.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics this library registers, plus a
// handful of plain atomic counters mirroring the gauges/counters below so
// cmd/pgserve/admin can report a live count without scraping its own
// registry.
type Collector struct {
	Registry *prometheus.Registry

	authAttemptsTotal        *prometheus.CounterVec
	tlsHandshakeSeconds      *prometheus.HistogramVec
	messageLoopErrors        *prometheus.CounterVec
	detachTotal              prometheus.Counter
	connectionsActive        prometheus.Gauge
	connectionsAccepted      prometheus.Counter
	connectionsAuthenticated prometheus.Gauge

	accepted      atomic.Int64
	authenticated atomic.Int64
}

// New creates and registers all metrics on a fresh registry. Safe to call
// multiple times — each call is independent, same as the teacher's New.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		authAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pggateway_auth_attempts_total",
				Help: "Number of authentication attempts by method and result",
			},
			[]string{"method", "result"},
		),
		tlsHandshakeSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pggateway_tls_handshake_duration_seconds",
				Help:    "Duration of the server-side TLS upgrade handshake",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"result"},
		),
		messageLoopErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pggateway_message_loop_errors_total",
				Help: "Number of errors encountered while driving the connection's message loop",
			},
			[]string{"kind"},
		),
		detachTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pggateway_detach_total",
				Help: "Number of connections detached from engine control",
			},
		),
		connectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pggateway_connections_active",
				Help: "Number of connections currently being served",
			},
		),
		connectionsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pggateway_connections_accepted_total",
				Help: "Total number of connections accepted since startup",
			},
		),
		connectionsAuthenticated: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pggateway_connections_authenticated",
				Help: "Number of currently served connections that completed authentication",
			},
		),
	}

	reg.MustRegister(
		c.authAttemptsTotal,
		c.tlsHandshakeSeconds,
		c.messageLoopErrors,
		c.detachTotal,
		c.connectionsActive,
		c.connectionsAccepted,
		c.connectionsAuthenticated,
	)
	return c
}

// RecordAuthAttempt records the outcome of one authentication flow.
func (c *Collector) RecordAuthAttempt(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.authAttemptsTotal.WithLabelValues(method, result).Inc()
	if success {
		c.connectionsAuthenticated.Inc()
		c.authenticated.Add(1)
	}
}

// ObserveTLSHandshake records how long a TLS upgrade took.
func (c *Collector) ObserveTLSHandshake(result string, d time.Duration) {
	c.tlsHandshakeSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// RecordMessageLoopError increments the error counter for the given kind
// (e.g. "protocol_violation", "io", "hook").
func (c *Collector) RecordMessageLoopError(kind string) {
	c.messageLoopErrors.WithLabelValues(kind).Inc()
}

// RecordDetach increments the detach counter.
func (c *Collector) RecordDetach() {
	c.detachTotal.Inc()
}

// ConnectionStarted marks a connection as accepted and active.
func (c *Collector) ConnectionStarted() {
	c.connectionsActive.Inc()
	c.connectionsAccepted.Inc()
	c.accepted.Add(1)
}

// ConnectionEnded marks a connection as no longer active. wasAuthenticated
// must reflect whether that connection ever completed authentication, so
// the authenticated-connections count doesn't undercount below zero.
func (c *Collector) ConnectionEnded(wasAuthenticated bool) {
	c.connectionsActive.Dec()
	if wasAuthenticated {
		c.connectionsAuthenticated.Dec()
		c.authenticated.Add(-1)
	}
}

// Accepted returns the total number of connections accepted since startup.
func (c *Collector) Accepted() int64 {
	return c.accepted.Load()
}

// AuthenticatedActive returns the number of currently served connections
// that have completed authentication.
func (c *Collector) AuthenticatedActive() int64 {
	return c.authenticated.Load()
}
