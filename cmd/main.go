package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// Set through -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:   "scrobbler-proxy",
		Short: "Caching proxy for the Last.fm user API",
		Long: `scrobbler-proxy forwards user.getinfo and user.getrecenttracks for one
configured Last.fm user, throttles upstream calls per method and answers
from the last good response while the upstream is failing.

Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFile)
		},
	}

	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to config.yaml (default: ./config or working directory)")

	root.AddCommand(
		newServeCommand(&configFile),
		newFetchCommand(&configFile),
		newVersionCommand(),
	)

	return root
}
