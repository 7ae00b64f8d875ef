package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"hidroweb-scraper/storage"
)

var queryLimit int

func init() {
	queryCmd.Flags().IntVar(&queryLimit, "limit", 20, "Number of rows to show.")
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query <code> [--limit n]",
	Short: "Shows the latest stored readings of one station.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		station, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid station code %q", args[0])
		}

		store, err := storage.OpenPostgres(ctx, state.cfg.DSN(), state.logger)
		if err != nil {
			return err
		}
		defer store.Close()

		table, err := store.ResolveTable(ctx, state.cfg.PostgresTable)
		if err != nil {
			return err
		}
		rows, err := store.QueryStation(ctx, table, station, queryLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			state.logger.Warn("[postgres] No rows for station %d in %s", station, table)
			return nil
		}
		state.reporter.StationRows(rows)
		return nil
	},
}
