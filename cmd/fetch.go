package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/angeloszaimis/scrobbler-proxy/config"
	"github.com/angeloszaimis/scrobbler-proxy/internal/proxycache"
	"github.com/angeloszaimis/scrobbler-proxy/pkg/logger"
)

func newFetchCommand(configFile *string) *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a single proxy request and print the response",
		Long: `fetch runs one request through the proxy cache exactly as the HTTP
endpoint would and prints the status line and body. Useful for checking
the API key and user configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			log := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

			a, err := newApp(cfg, log, clock.New())
			if err != nil {
				return err
			}

			return runFetch(cmd.Context(), a.proxy, method, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&method, "method", "m", "user.getinfo", "upstream method to request")

	return cmd
}

type envelopeSource interface {
	Handle(ctx context.Context, method, origin string) proxycache.Envelope
}

// runFetch prints the envelope and fails unless it carries a 200.
func runFetch(ctx context.Context, proxy envelopeSource, method string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	env := proxy.Handle(ctx, method, "")

	fmt.Fprintf(out, "%d %s\n%s\n", env.Status, env.StatusText, env.Body)

	if env.Status != 200 {
		return fmt.Errorf("proxy answered %d: %s", env.Status, env.StatusText)
	}

	return nil
}
