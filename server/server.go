// Package server exposes the operational endpoints of the watch daemon.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/internal/logger"
	"github.com/jrschumacher/authsync/internal/middleware"
	"github.com/jrschumacher/authsync/internal/svrlib"
	health "github.com/jrschumacher/authsync/server/health-handlers"
)

const shutdownTimeout = 5 * time.Second

// New builds the HTTP server for the health, status and metrics endpoints.
func New(cfg *config.Config, sessions health.SessionSource, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	health.RegisterRoutes(mux, "", cfg, sessions)
	svrlib.NewRouter(mux, "", cfg).Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	log := logger.Component("server")
	handler := middleware.NewChain(middleware.Recover(log), middleware.RequestLogger(log)).Then(mux)

	return &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving operational endpoints", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
