package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jrschumacher/authsync/internal/client"
	"github.com/jrschumacher/authsync/internal/logger"
	"github.com/jrschumacher/authsync/pkg/auth/session"
	"github.com/jrschumacher/authsync/server"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the stored session fresh until interrupted",
	Long: `Load the stored session and refresh it ahead of expiry until SIGINT or SIGTERM.

Health and Prometheus metrics are served on the configured metrics address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx)
	},
}

func runWatch(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c, err := newClient(ctx, client.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer c.Close()

	log := logger.Component("watch")
	unsubscribe := c.Coordinator.Subscribe(func(_ context.Context, event session.Event, s *session.Session) {
		if s == nil {
			log.Info("Auth state changed", "event", string(event))
			return
		}
		log.Info("Auth state changed", "event", string(event), "expires_at", s.Expiry())
	})
	defer unsubscribe()

	if _, err := c.Coordinator.Initialize(ctx); err != nil {
		return err
	}
	if cfg.AutoRefresh {
		c.Coordinator.StartAutoRefresh()
		defer c.Coordinator.StopAutoRefresh()
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		srv := server.New(cfg, c.Coordinator, reg)
		g.Go(func() error { return server.Serve(gctx, srv) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		return nil
	})
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
