package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
)

// ReadyCheck probes one dependency the daemon cannot serve without. It
// returns nil when the dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// Status bodies served by the diagnostics endpoints.
const (
	bodyOK          = `{"status":"ok"}`
	bodyUnavailable = `{"status":"unavailable"}`
)

// DiagnosticsServer exposes the daemon's operational surface over HTTP:
// liveness at /healthz, readiness at /readyz, and the Prometheus scrape
// endpoint at /metrics.
type DiagnosticsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewDiagnosticsServer starts the diagnostics listener at addr. When
// metricsHandler is non-nil it is mounted at /metrics; pass
// Providers.MetricsHandler so the scrape endpoint observes the live meter
// provider.
func NewDiagnosticsServer(addr string, metricsHandler http.Handler, checks ...ReadyCheck) (*DiagnosticsServer, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", liveness)
	mux.HandleFunc("/readyz", readiness(checks))

	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	var lc net.ListenConfig

	listener, listenErr := lc.Listen(context.Background(), "tcp", addr)
	if listenErr != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, listenErr)
	}

	srv := &http.Server{Handler: mux}

	go func() {
		serveErr := srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Warn("diagnostics server stopped", "error", serveErr)
		}
	}()

	return &DiagnosticsServer{server: srv, listener: listener}, nil
}

// Addr returns the address the server is listening on.
func (d *DiagnosticsServer) Addr() string {
	return d.listener.Addr().String()
}

// Close gracefully shuts down the diagnostics server.
func (d *DiagnosticsServer) Close() error {
	shutdownErr := d.server.Shutdown(context.Background())
	if shutdownErr != nil {
		return fmt.Errorf("shutdown diagnostics server: %w", shutdownErr)
	}

	return nil
}

// liveness answers 200 unconditionally; the process serving the request
// is the whole check.
func liveness(rw http.ResponseWriter, _ *http.Request) {
	respond(rw, http.StatusOK, bodyOK)
}

// readiness runs every registered probe and answers 503 on the first
// failure.
func readiness(checks []ReadyCheck) http.HandlerFunc {
	return func(rw http.ResponseWriter, hr *http.Request) {
		for _, probe := range checks {
			if probeErr := probe(hr.Context()); probeErr != nil {
				respond(rw, http.StatusServiceUnavailable, bodyUnavailable)

				return
			}
		}

		respond(rw, http.StatusOK, bodyOK)
	}
}

func respond(rw http.ResponseWriter, code int, body string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	if _, writeErr := io.WriteString(rw, body); writeErr != nil {
		return
	}
}
