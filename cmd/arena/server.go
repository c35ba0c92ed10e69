package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vango-dev/arena/pkg/middleware"
)

const shutdownTimeout = 5 * time.Second

// serveHTTP runs srv in g until ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, g *errgroup.Group, srv *http.Server, logger *slog.Logger) {
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// newMetricsRegistry returns a registry with the Go runtime and process
// collectors registered.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// metricsHandler serves reg on /metrics.
func metricsHandler(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

// serveMetrics serves reg when addr is set.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	if addr == "" {
		return
	}
	serveHTTP(ctx, g, &http.Server{
		Addr:              addr,
		Handler:           metricsHandler(reg),
		ReadHeaderTimeout: shutdownTimeout,
	}, logger.With("component", "metrics"))
}

// instrument wraps h with request metrics registered on reg and tracing.
// Each server of a process needs its own subsystem.
func instrument(h http.Handler, reg prometheus.Registerer, subsystem string) http.Handler {
	h = middleware.Prometheus(
		middleware.WithRegistry(reg),
		middleware.WithSubsystem(subsystem),
	)(h)
	return middleware.OpenTelemetry(middleware.WithTracerName("arena/" + subsystem))(h)
}
