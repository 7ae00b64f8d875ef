package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hidroweb-scraper/models"
	"hidroweb-scraper/services"
	"hidroweb-scraper/storage"
)

var loadOpts struct {
	csv   string
	table string
}

func init() {
	loadCmd.Flags().StringVar(&loadOpts.csv, "csv", "", "Consolidated CSV to load (default: newest in the principal folder).")
	loadCmd.Flags().StringVar(&loadOpts.table, "table", "", "Destination table (default: POSTGRES_TABLE or auto-detected).")
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load [--csv path] [--table name]",
	Short: "Inserts a consolidated CSV into the database, skipping rows already present.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := loadDataset(cmd.Context(), loadOpts.csv, loadOpts.table, uuid.NewString())
		return err
	},
}

func loadDataset(ctx context.Context, csvPath, table, runID string) (*models.LoadReport, error) {
	cfg := state.cfg
	logger := state.logger.With(runID)

	if csvPath == "" {
		latest, err := storage.LatestConsolidated(state.layout.Dir(storage.Principal))
		if err != nil {
			return nil, err
		}
		if latest == "" {
			return nil, fmt.Errorf("no consolidated file found; run consolidate first")
		}
		csvPath = latest
	}
	if table == "" {
		table = cfg.PostgresTable
	}

	store, err := storage.OpenPostgres(ctx, cfg.DSN(), logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	loader := services.NewLoader(store, logger, services.LoaderOptions{
		Table:            table,
		SampleSize:       cfg.SampleSize,
		StatementTimeout: cfg.StatementTimeout,
		MinBatchSize:     storage.DefaultMinBatchSize,
		Progress: func(committed, total int) {
			logger.Info("[loader] %d/%d rows committed", committed, total)
		},
	})

	rep, err := loader.Load(ctx, csvPath, runID)
	if rep != nil && rep.Table != "" {
		state.reporter.Load(rep)
	}
	return rep, err
}
