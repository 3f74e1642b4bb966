package ops

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// MetricsServer serves the process-wide Prometheus registry (the
// counters registered by PrometheusMetrics, among others) over HTTP.
type MetricsServer struct {
	addr   string
	path   string
	server *http.Server
}

// NewMetricsServer builds a MetricsServer listening on addr and
// publishing the registry at path. An empty path defaults to
// "/metrics".
func NewMetricsServer(addr, path string) *MetricsServer {
	if path == "" {
		path = "/metrics"
	}
	return &MetricsServer{addr: addr, path: path}
}

// Start launches the metrics HTTP server in the background. Errors
// encountered after a successful start are logged rather than
// returned, matching the fire-and-forget lifecycle callers expect from
// a sidecar metrics endpoint.
func (s *MetricsServer) Start() {
	var mux = http.NewServeMux()
	mux.Handle(s.path, promhttp.Handler())

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.WithFields(log.Fields{"addr": s.addr, "path": s.path}).Info("starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("err", err).Error("metrics server exited")
		}
	}()
}

// Stop gracefully shuts the metrics server down, waiting up to 5
// seconds for in-flight scrapes to finish.
func (s *MetricsServer) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	var shutdownCtx, cancel = context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}
	return nil
}
