package logging

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"
)

// DefaultPprofAddr is where the profiler listens when enabled.
const DefaultPprofAddr = "localhost:6060"

func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// startPprof serves the profiler on its own mux so the web control surface
// never exposes it.
func startPprof(addr string) {
	log := ForComponent(CompPerf)
	srv := &http.Server{Addr: addr, Handler: pprofMux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("pprof_server_start", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil {
			log.Error("pprof_server_error", slog.String("error", err.Error()))
		}
	}()
}
