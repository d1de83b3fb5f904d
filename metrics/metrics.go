// Package metrics exposes the engine's Prometheus collectors on a
// dedicated registry, separate from the process-global one, so an
// embedding application can mount them (or not) without fighting over
// default registration.
package metrics

import (
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drand/assemble/log"
)

var (
	// Registry is where every collector below is registered. Callers
	// that want the Go/process runtime collectors alongside the
	// engine's own call RegisterRuntimeCollectors.
	Registry = prometheus.NewRegistry()

	// InvocationsEnqueued counts every Put/Get/Send handed to the
	// Transporter's queue, labeled by operation kind (put, get, relay).
	InvocationsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assemble_invocations_enqueued_total",
		Help: "Number of DHT invocations admitted to the transport queue, by kind",
	}, []string{"kind"})

	// InvocationsDispatched counts every invocation the Transporter has
	// actually handed to the Network, by kind.
	InvocationsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assemble_invocations_dispatched_total",
		Help: "Number of DHT invocations dispatched to the network, by kind",
	}, []string{"kind"})

	// QueueDepth tracks the Transporter's current queue length.
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assemble_transport_queue_depth",
		Help: "Current number of invocations waiting in the transport queue",
	})

	// RetriesIssued counts every reput/reget retry, labeled by verb
	// ("put" or "get").
	RetriesIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assemble_retries_issued_total",
		Help: "Number of put/get retries issued after a zero-response or decode failure",
	}, []string{"verb"})

	// TerminalErrors counts every terminal outcome reported to the sink
	// that carried a non-zero error code, labeled by the code's name.
	TerminalErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assemble_terminal_errors_total",
		Help: "Number of terminal (PutDone/GetDone/RelayDone) outcomes by error code",
	}, []string{"code"})

	registered bool
)

// Bind registers every domain collector above onto Registry, once.
// Any caller that serves Registry over HTTP (admin.New, Start below)
// must call this first or the exposition will be missing them.
func Bind() error {
	if registered {
		return nil
	}
	registered = true

	cs := []prometheus.Collector{
		InvocationsEnqueued,
		InvocationsDispatched,
		QueueDepth,
		RetriesIssued,
		TerminalErrors,
	}
	for _, c := range cs {
		if err := Registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRuntimeCollectors adds the standard Go/process collectors to
// Registry. Kept separate from Bind so tests that only care about the
// domain metrics above don't pay for scraping runtime stats.
func RegisterRuntimeCollectors() error {
	if err := Registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	return Registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Start binds every collector and serves /metrics and /debug/gc (and,
// if pprof is non-nil, /debug/pprof/) on addr, returning the listener
// so the caller controls its lifetime.
func Start(l log.Logger, addr string, pprof http.Handler) (net.Listener, error) {
	if err := Bind(); err != nil {
		return nil, fmt.Errorf("binding metrics collectors: %w", err)
	}

	if !strings.Contains(addr, ":") {
		addr = "localhost:" + addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry}))
	if pprof != nil {
		mux.Handle("/debug/pprof/", pprof)
	}
	mux.HandleFunc("/debug/gc", func(w http.ResponseWriter, _ *http.Request) {
		runtime.GC()
		fmt.Fprint(w, "GC run complete")
	})

	server := &http.Server{Handler: mux}
	go func() {
		l.Infow("metrics server stopped", "err", server.Serve(ln))
	}()
	return ln, nil
}

// ObserveEnqueue increments InvocationsEnqueued for kind.
func ObserveEnqueue(kind string) {
	InvocationsEnqueued.WithLabelValues(kind).Inc()
}

// ObserveDispatch increments InvocationsDispatched for kind.
func ObserveDispatch(kind string) {
	InvocationsDispatched.WithLabelValues(kind).Inc()
}

// ObserveRetry increments RetriesIssued for verb.
func ObserveRetry(verb string) {
	RetriesIssued.WithLabelValues(verb).Inc()
}

// ObserveTerminalError increments TerminalErrors for code, when code is
// not the zero value.
func ObserveTerminalError(code string) {
	if code == "NO_ERROR" {
		return
	}
	TerminalErrors.WithLabelValues(code).Inc()
}

// SetQueueDepth reports the Transporter's current queue length.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}
