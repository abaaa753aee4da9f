// Package cli holds the chess-server database maintenance commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chesssync/internal/client/display"
	"chesssync/internal/server/storage"
)

// NewCommand returns the "db" command tree
func NewCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain the SQLite game database",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("database path required (--path)")
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "Database file path (required)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create the schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runInit(cmd.OutOrStdout(), path)
			},
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Delete the database file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runDelete(cmd.OutOrStdout(), path)
			},
		},
		newShowCommand(&path),
		&cobra.Command{
			Use:   "reset",
			Short: "Put the game back to the starting position",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReset(cmd.Context(), cmd.OutOrStdout(), path)
			},
		},
	)
	return cmd
}

func newShowCommand(path *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the game record and recent moves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cmd.OutOrStdout(), *path, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent moves to list")
	return cmd
}

func openStore(path string) (*storage.Store, error) {
	store, err := storage.NewStore(path, false, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func runInit(out io.Writer, path string) error {
	store, err := openStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitDB(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fmt.Fprintf(out, "Database initialized at: %s\n", path)
	return nil
}

func runDelete(out io.Writer, path string) error {
	store, err := openStore(path)
	if err != nil {
		return err
	}

	if err := store.DeleteDB(); err != nil {
		return fmt.Errorf("failed to delete database: %w", err)
	}

	fmt.Fprintf(out, "Database deleted: %s\n", path)
	return nil
}

func runShow(ctx context.Context, out io.Writer, path string, limit int) error {
	store, err := openStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		rec = storage.InitialRecord()
	default:
		return fmt.Errorf("load game: %w", err)
	}

	fmt.Fprintf(out, "Version: %d\n", rec.Version)
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "Updated: %s\n", rec.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "FEN:     %s\n", rec.FEN)
	fmt.Fprintf(out, "Moves:   %s\n", display.FormatHistory(rec.History))

	moves, err := store.QueryMoves(ctx, limit)
	if err != nil {
		return fmt.Errorf("query moves: %w", err)
	}
	if len(moves) == 0 {
		fmt.Fprintln(out, "\nNo moves logged")
		return nil
	}

	// Print results in tabular format
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Ply\tSAN\tActor\tVersion\tTime")
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, m := range moves {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			m.Ply,
			m.SAN,
			m.Actor,
			m.Version,
			m.MoveTimeUTC.Format("2006-01-02 15:04:05"),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nShowing %d move(s)\n", len(moves))
	return nil
}

func runReset(ctx context.Context, out io.Writer, path string) error {
	store, err := openStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	games := storage.NewGameStore(store, storage.DefaultRetryPolicy(), zap.NewNop())
	cur, err := games.Load(ctx)
	if err != nil {
		return err
	}
	rec, err := games.Reset(ctx, cur.Version)
	if err != nil {
		return fmt.Errorf("reset game: %w", err)
	}

	fmt.Fprintf(out, "Game reset (version %d)\n", rec.Version)
	return nil
}
