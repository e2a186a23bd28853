package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jrschumacher/authsync/pkg/auth/transport"
)

var (
	requestMethod  string
	requestData    string
	requestHeaders []string
)

var requestCmd = &cobra.Command{
	Use:   "request <url>",
	Short: "Send an HTTP request authorized with the stored session",
	Long: `Send an HTTP request with the current access token as a bearer credential.

The session is refreshed first when it is about to expire. If the server
answers 401 the token is force-refreshed and the request retried once.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		c, err := newClient(ctx)
		if err != nil {
			return err
		}
		defer c.Close()

		if _, err := c.Coordinator.Initialize(ctx); err != nil {
			return err
		}

		var body io.Reader
		if requestData != "" {
			body = strings.NewReader(requestData)
		}
		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(requestMethod), args[0], body)
		if err != nil {
			return err
		}
		for _, h := range requestHeaders {
			name, value, ok := strings.Cut(h, ":")
			if !ok {
				return fmt.Errorf("invalid header %q, want \"Name: value\"", h)
			}
			req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		httpClient := transport.NewBearerClient(c.Coordinator, nil)
		httpClient.Timeout = cfg.HTTPTimeout
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("request failed: %s", resp.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().StringVarP(&requestMethod, "method", "X", http.MethodGet, "HTTP method")
	requestCmd.Flags().StringVarP(&requestData, "data", "d", "", "request body")
	requestCmd.Flags().StringArrayVarP(&requestHeaders, "header", "H", nil, "extra header as \"Name: value\" (repeatable)")
}
