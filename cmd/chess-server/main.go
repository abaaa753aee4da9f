// Package main implements the chess sync server: a single shared game behind
// a JSON API, with optional SQLite or Redis persistence.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chesssync/cmd/chess-server/cli"
	"chesssync/internal/config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serve := newServeCommand()

	root := &cobra.Command{
		Use:   "chess-server",
		Short: "Shared chess game server",
		Long: `chess-server hosts one chess game that any number of clients can
read and play. Moves are validated server side and persisted to SQLite or a
redis-compatible store when configured.

Run without a subcommand to start the API server.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, cli.NewCommand(), newConfigCommand())
	return root
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "write <path>",
		Short: "Write the effective configuration (defaults plus environment) as YAML, secrets omitted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load("")
			if err != nil {
				return err
			}
			if err := cfg.Redacted().Save(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", args[0])
			return nil
		},
	})
	return cmd
}
