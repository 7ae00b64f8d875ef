package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hidroweb-scraper/config"
	"hidroweb-scraper/services"
	"hidroweb-scraper/storage"
	"hidroweb-scraper/utils"
)

// app holds what every subcommand shares once the root pre-run has loaded it.
type app struct {
	cfg      *config.Config
	logger   *utils.Logger
	layout   *storage.Layout
	reporter *services.Reporter
}

var (
	state     app
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:           "hidroweb",
	Short:         "hidroweb downloads, consolidates and loads station water-level series.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := utils.NewLogger()
		logger.SetDebug(cfg.LogDebug || debugFlag)

		layout := storage.NewLayout(cfg.BaseDir, cfg.ScratchDir)
		if err := layout.Ensure(); err != nil {
			return err
		}
		if cfg.LogFile != "" {
			if err := logger.AttachFile(cfg.LogFile); err != nil {
				logger.Warn("[config] Log file disabled: %v", err)
			}
		}

		state = app{
			cfg:      cfg,
			logger:   logger,
			layout:   layout,
			reporter: services.NewReporter(cmd.OutOrStdout()),
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if state.logger != nil {
			_ = state.logger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging.")
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func destinationFor(consultadas bool) storage.Destination {
	if consultadas {
		return storage.Consultadas
	}
	return storage.Principal
}
