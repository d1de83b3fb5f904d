// Package admin exposes an Assembler's runtime state over HTTP: queue
// depth and dispatch pacing for operators, a health probe for
// orchestrators, and the metrics registry for Prometheus scraping.
// Routing follows the teacher's http.server chi.Mux-plus-instrumented-
// handler shape, generalized from randomness-beacon endpoints to this
// engine's transport status.
package admin

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drand/assemble/assemble"
	"github.com/drand/assemble/log"
	"github.com/drand/assemble/metrics"
	pprofhandler "github.com/drand/assemble/metrics/pprof"
)

// StatusSource is the subset of an Assembler's state the status
// endpoint reports. Implemented by *assemble.Assembler.
type StatusSource interface {
	QueueDepth() int
	CurrentDelay() time.Duration
	LiveNodeCount() int
	SelfKey() assemble.PubKey
}

// Server wraps a chi.Mux serving /status, /healthz, and /metrics.
type Server struct {
	Handler http.Handler

	log    log.Logger
	source StatusSource
}

// New builds an admin Server reporting source's state, with access
// logging and panic recovery wrapped around every route in the
// teacher's gorilla/handlers style.
func New(l log.Logger, source StatusSource) *Server {
	s := &Server{log: l, source: source}

	if err := metrics.Bind(); err != nil {
		l.Warnw("", "admin", "failed to bind metrics collectors", "err", err)
	}

	mux := chi.NewMux()
	mux.Get("/status", s.status)
	mux.Get("/healthz", s.healthz)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.Mount("/debug/pprof/", pprofhandler.WithProfile())

	s.Handler = handlers.RecoveryHandler()(
		handlers.CombinedLoggingHandler(recoveryLogWriter{l}, mux),
	)
	return s
}

// ListenAndServe starts the admin HTTP server on addr, blocking until
// it returns an error (always non-nil, per http.Server.ListenAndServe).
func (s *Server) ListenAndServe(addr string) error {
	s.log.Infow("", "admin", "starting admin server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler)
}

type statusResponse struct {
	SelfKey       string `json:"selfKey"`
	QueueDepth    int    `json:"queueDepth"`
	CurrentDelay  string `json:"currentDelay"`
	LiveNodeCount int    `json:"liveNodeCount"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	self := s.source.SelfKey()
	resp := statusResponse{
		SelfKey:       hex.EncodeToString(self[:]),
		QueueDepth:    s.source.QueueDepth(),
		CurrentDelay:  s.source.CurrentDelay().String(),
		LiveNodeCount: s.source.LiveNodeCount(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warnw("", "admin", "failed to encode status response", "err", err)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.source.LiveNodeCount() <= 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no live nodes\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// recoveryLogWriter adapts log.Logger to the io.Writer
// handlers.CombinedLoggingHandler expects for access logs.
type recoveryLogWriter struct {
	l log.Logger
}

func (w recoveryLogWriter) Write(p []byte) (int, error) {
	w.l.Infow("", "admin", "access", "line", string(p))
	return len(p), nil
}
