package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrschumacher/authsync/internal/client"
	"github.com/jrschumacher/authsync/pkg/auth/jwt"
	"github.com/jrschumacher/authsync/pkg/auth/lock"
	"github.com/jrschumacher/authsync/pkg/auth/session"
)

var utilCmd = &cobra.Command{
	Use:     "util",
	Aliases: []string{"utils"},
	Short:   "Utility commands for authsync",
}

var utilDecodeTokenCmd = &cobra.Command{
	Use:   "decode-token <jwt>",
	Short: "Print the claims of an access token without verifying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claims, err := jwt.ParseClaims(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(claims, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var utilLockPathCmd = &cobra.Command{
	Use:   "lock-path",
	Short: "Print the lock file guarding the configured session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := cfg.LockDir
		if dir == "" {
			var err error
			if dir, err = client.StorageDir(cfg); err != nil {
				return err
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), lock.NewFileLock(dir).Path(session.LockName(cfg.StorageKey)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(utilCmd)
	utilCmd.AddCommand(utilDecodeTokenCmd, utilLockPathCmd)
}
