// Package pprof is kept separate from metrics so importing the
// metrics package alone never pulls in net/http/pprof's registration
// side effects; only a binary that explicitly mounts WithProfile pays
// for it.
package pprof

import (
	"net/http"

	pprof "net/http/pprof" // adds default pprof endpoint at /debug/pprof
)

// WithProfile builds a mux serving pprof's handlers, meant to be
// mounted at /debug/pprof/ by the caller (see admin.New).
func WithProfile() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)

	return mux
}
