package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"hidroweb-scraper/config"
	"hidroweb-scraper/storage"
)

var saveProfile bool

func init() {
	checkDBCmd.Flags().BoolVar(&saveProfile, "save-profile", false, "Store the connection settings (without password) once the check passes.")
	rootCmd.AddCommand(checkDBCmd)
}

var checkDBCmd = &cobra.Command{
	Use:   "check-db [--save-profile]",
	Short: "Tests the database connection and reports on the destination table.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, logger := state.cfg, state.logger

		profile := config.ProfileFrom(cfg)
		if err := profile.Validate(); err != nil {
			return err
		}

		store, err := storage.OpenPostgres(ctx, cfg.DSN(), logger)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Ping(ctx); err != nil {
			return err
		}
		logger.Info("[postgres] Connected to %s@%s:%s/%s", cfg.PostgresUser, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)

		table, err := store.ResolveTable(ctx, cfg.PostgresTable)
		switch {
		case errors.Is(err, storage.ErrNoTable), errors.Is(err, storage.ErrTableNotFound):
			logger.Warn("[postgres] %v", err)
		case err != nil:
			return err
		default:
			st, err := store.Stats(ctx, table)
			if err != nil {
				return err
			}
			state.reporter.Table(st)
			profile.Table = table
		}

		locks, err := store.ActiveLocks(ctx, []string{"ana_%", "%cota%"})
		if err != nil {
			logger.Warn("[postgres] Lock report unavailable: %v", err)
		} else {
			state.reporter.Locks(locks)
		}

		if saveProfile {
			path := config.ProfilePath(cfg.BaseDir)
			if err := config.SaveProfile(path, profile); err != nil {
				return err
			}
			logger.Info("[config] Connection profile saved to %s", path)
		}
		return nil
	},
}
