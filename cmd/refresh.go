package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jrschumacher/authsync/pkg/auth/session"
)

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the stored session if it is about to expire",
	Long: `Refresh the stored session if it expires within the configured margin.

With --force the refresh token is exchanged unconditionally.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		var s *session.Session
		if refreshForce {
			s, err = c.Coordinator.RefreshSession(ctx, true)
		} else {
			if _, err = c.Coordinator.Initialize(ctx); err == nil {
				s, err = c.Coordinator.GetSession(ctx)
			}
		}
		if err != nil {
			return err
		}
		if s == nil {
			return session.ErrSessionMissing
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Session valid until %s\n", formatExpiry(s))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().BoolVarP(&refreshForce, "force", "f", false, "refresh even if the session is not expiring")
}
