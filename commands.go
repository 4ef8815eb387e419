package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/d3vgru/easy-peasy-bot/config"
	"github.com/d3vgru/easy-peasy-bot/db"
	"github.com/d3vgru/easy-peasy-bot/ledger"
	"github.com/d3vgru/easy-peasy-bot/recap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|version]",
		Short:     "Manage the datastore schema",
		Long:      "up applies pending migrations (default), down rolls back one step (Postgres only), version prints the schema version.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "up"
			if len(args) == 1 {
				dir = args[0]
			}
			return runMigrate(cmd.Context(), cmd.OutOrStdout(), dir)
		},
	}
}

func runMigrate(ctx context.Context, out io.Writer, dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	database, dialect, err := db.ConnectWithRetry(ctx, cfg.DBDsn, cfg.DatastoreSecret, cfg.DBConnectWait)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer database.Close()

	switch dir {
	case "up":
		if err := db.Prepare(ctx, database, dialect); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "schema up to date")
		return nil
	case "down":
		if dialect != db.Postgres {
			return fmt.Errorf("migrate down needs a postgres datastore")
		}
		return db.MigrateDown(database)
	default:
		if dialect != db.Postgres {
			_, _ = fmt.Fprintln(out, "sqlite: embedded schema (unversioned)")
			return nil
		}
		v, dirty, err := db.GetMigrationVersion(database)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "version %d dirty=%t\n", v, dirty)
		return nil
	}
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <code>",
		Short: "Print the best recap for a production code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger) error {
				rec, found, err := l.FindByProductionCode(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("no episode found for %s", args[0])
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), rec.Line())
				return err
			})
		},
	}
}

func newSeasonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "season <n>",
		Short: "Print a season's recaps in episode order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			season, ok := recap.ParseSeason(args[0])
			if !ok {
				return fmt.Errorf("season must be a number: %q", args[0])
			}
			return withLedger(cmd.Context(), func(ctx context.Context, l *ledger.Ledger) error {
				n := 0
				for rec, err := range l.FindBySeason(ctx, season) {
					if err != nil {
						return err
					}
					n++
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), rec.Line()); err != nil {
						return err
					}
				}
				if n == 0 {
					return fmt.Errorf("no episodes found for season %d", season)
				}
				return nil
			})
		},
	}
}

// withLedger opens the configured datastore for a one-shot query. Unlike serve,
// an unreachable store fails the command.
func withLedger(ctx context.Context, fn func(context.Context, *ledger.Ledger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	database, dialect, err := db.ConnectWithRetry(ctx, cfg.DBDsn, cfg.DatastoreSecret, cfg.DBConnectWait)
	if err != nil {
		return fmt.Errorf("open datastore: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Prepare(ctx, database, dialect); err != nil {
		return fmt.Errorf("migrate datastore: %w", err)
	}
	return fn(ctx, ledger.New(database, dialect))
}
