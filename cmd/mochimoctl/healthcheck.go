package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	healthURL     string
	healthTimeout time.Duration
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Probe a running server's readiness endpoint",
	Long: `Request the server's /readyz endpoint and exit non-zero unless it answers 200.
Intended for container HEALTHCHECK instructions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return probe(cmd.Context(), cmd.OutOrStdout(), healthURL, healthTimeout)
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthURL, "url", envOr("MOCHIMO_READY_URL", "http://127.0.0.1:8080/readyz"), "Readiness URL")
	healthcheckCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "Request timeout")
}

func probe(ctx context.Context, w io.Writer, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: status %d: %s", url, resp.StatusCode, body)
	}
	fmt.Fprintf(w, "ok %s\n", body)
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
