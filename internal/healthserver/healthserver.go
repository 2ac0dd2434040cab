// Package healthserver is the external-collaborator-at-the-edge HTTP
// surface: liveness/readiness, Prometheus metrics, and the discovery
// document. None of it is part of the deterministic core - it is the one
// place this service wires github.com/prometheus/client_golang, using the
// standard promauto.NewCounterVec registration pattern.
package healthserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/solver-core/internal/discovery"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_runs_total",
		Help: "Total pipeline runs, labeled by terminal status.",
	}, []string{"status"})

	refusalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solver_refusals_total",
		Help: "Total intents refused by the policy gate.",
	})
)

// RecordRun increments the run counter for a terminal status
// (SUCCESS/FAILED/REFUSED).
func RecordRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// RecordRefusal increments the refusal counter.
func RecordRefusal() {
	refusalsTotal.Inc()
}

// Server serves /healthz, /metrics, and /.well-known/agent-card.json.
type Server struct {
	http *http.Server
}

// New builds a Server listening on addr, serving card as the discovery
// document.
func New(addr string, card discovery.Card) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/.well-known/agent-card.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(card)
	})

	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// ListenAndServe runs the server until it errors or Shutdown is called.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
