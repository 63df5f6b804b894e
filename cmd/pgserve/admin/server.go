// Package admin runs the small HTTP surface that sits alongside pgserve's
// Postgres listener: Prometheus metrics, a liveness probe, and a status
// endpoint, the same routing shape as the teacher's internal/api.Server
// trimmed to what a single embedded gateway process needs (no tenant CRUD,
// no per-tenant health).
package admin

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/supabase-community/pg-gateway/internal/democonfig"
	"github.com/supabase-community/pg-gateway/internal/metrics"
)

// Server is the admin/metrics HTTP server.
type Server struct {
	metrics    *metrics.Collector
	startTime  time.Time
	httpServer *http.Server
	cfg        atomic.Value // democonfig.Config
}

// NewServer creates an admin server reporting m's metrics and cfg's current
// listen configuration.
func NewServer(m *metrics.Collector, cfg democonfig.Config) *Server {
	s := &Server{metrics: m, startTime: time.Now()}
	s.cfg.Store(cfg)
	return s
}

// UpdateConfig swaps in a freshly hot-reloaded config for /status to report.
func (s *Server) UpdateConfig(cfg democonfig.Config) {
	s.cfg.Store(cfg)
}

// Start starts the HTTP admin server listening on addr.
func (s *Server) Start(addr string) error {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/debug/connections", s.debugConnectionsHandler).Methods("GET")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Printf("[admin] listening on %s", addr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[admin] server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the admin server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	cfg, _ := s.cfg.Load().(democonfig.Config)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"listen_address": cfg.Listen.Address,
		"auth_mode":      string(cfg.Auth.Mode),
		"server_version": cfg.ServerVersion,
	})
}

// debugConnectionsHandler reports a live count of accepted and currently
// authenticated connections, sourced from the same counters /metrics
// exposes as Prometheus series.
func (s *Server) debugConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{
		"accepted":      s.metrics.Accepted(),
		"authenticated": s.metrics.AuthenticatedActive(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
