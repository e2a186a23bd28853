package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrschumacher/authsync/pkg/auth/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the stored session",
}

var sessionImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a session from a token response JSON file (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}

		var s session.Session
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to parse session: %w", err)
		}

		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Coordinator.SetSession(cmd.Context(), &s); err != nil {
			return err
		}
		stored := c.Coordinator.Session()
		fmt.Fprintf(cmd.OutOrStdout(), "Session stored, expires at %s\n", formatExpiry(stored))
		return nil
	},
}

var sessionShowReveal bool

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		s, err := c.Storage.Load(cmd.Context(), cfg.StorageKey)
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No session stored")
			return nil
		}
		if !sessionShowReveal {
			s.AccessToken = mask(s.AccessToken)
			s.RefreshToken = mask(s.RefreshToken)
		}

		out, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:     "clear",
	Aliases: []string{"sign-out"},
	Short:   "Remove the stored session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Coordinator.SignOut(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session removed")
		return nil
	},
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func mask(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "…" + token[len(token)-4:]
}

func formatExpiry(s *session.Session) string {
	exp := s.Expiry()
	if exp.IsZero() {
		return "unknown"
	}
	return exp.UTC().Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionImportCmd, sessionShowCmd, sessionClearCmd)
	sessionShowCmd.Flags().BoolVar(&sessionShowReveal, "reveal", false, "print tokens unmasked")
}
