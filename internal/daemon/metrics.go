package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/d2verb/scanjob/internal/metrics"
)

// MetricsServer serves /metrics over HTTP.
type MetricsServer struct {
	srv    *http.Server
	addr   string
	logger *slog.Logger
}

// StartMetrics listens on addr and serves the metrics registry until
// Shutdown is called.
func StartMetrics(addr string, logger *slog.Logger) (*MetricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	m := &MetricsServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr:   ln.Addr().String(),
		logger: logger,
	}
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", m.addr)
	return m, nil
}

// Addr returns the listening address.
func (m *MetricsServer) Addr() string {
	return m.addr
}

// Shutdown stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	return m.srv.Shutdown(ctx)
}
