package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jrschumacher/authsync/internal/client"
	"github.com/jrschumacher/authsync/internal/config"
	"github.com/jrschumacher/authsync/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "authsync",
	Short: "authsync CLI",
	Long: `authsync keeps one OAuth session fresh for every process that shares it.

Sessions are stored on disk or in a SQL database and refreshed under a lock,
so concurrent processes never spend the same refresh token twice.`,
	SilenceUsage: true,
}

func Execute(c *config.Config) {
	cfg = c
	logger.Debug("Starting CLI", "env", cfg.AppEnv)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("CLI error", "error", err)
		os.Exit(1)
	}
}

func newClient(ctx context.Context, opts ...client.Option) (*client.Client, error) {
	return client.New(ctx, cfg, opts...)
}
