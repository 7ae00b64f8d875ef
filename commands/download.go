package commands

import (
	"context"

	"github.com/spf13/cobra"

	"hidroweb-scraper/models"
	"hidroweb-scraper/scraper/hidroweb"
	"hidroweb-scraper/storage"
)

var downloadOpts struct {
	file        string
	consultadas bool
}

func init() {
	downloadCmd.Flags().StringVar(&downloadOpts.file, "file", "", "Read station codes from this file.")
	downloadCmd.Flags().BoolVar(&downloadOpts.consultadas, "consultadas", false, "Save archives in the Consultadas folder.")
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download [codes...] [--file stations.txt] [--consultadas]",
	Short: "Downloads the archive of every listed station from the portal.",
	RunE: func(cmd *cobra.Command, args []string) error {
		codes, err := collectStations(args, downloadOpts.file)
		if err != nil {
			return err
		}
		_, err = downloadStations(cmd.Context(), codes, destinationFor(downloadOpts.consultadas))
		return err
	},
}

func downloadStations(ctx context.Context, codes []string, dest storage.Destination) (*models.BatchResult, error) {
	cfg, logger := state.cfg, state.logger

	session := hidroweb.NewSession(cfg, logger)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	defer session.Close()

	dir := state.layout.Dir(dest)
	downloader := hidroweb.NewDownloader(session, state.layout.Scratch, dir, cfg.Timeouts, logger)
	res := hidroweb.NewOrchestrator(downloader, logger, cfg.MaxPasses).
		OnProgress(func(i, n int, label string) {
			logger.Info("[orchestrator] (%d/%d) %s", i, n, label)
		}).
		StopWhen(func() bool { return ctx.Err() != nil }).
		Run(ctx, codes)
	res.Destination = dir

	if kept, removed, err := storage.DedupeAll(dir); err != nil {
		logger.Warn("[layout] Could not tidy %s: %v", dir, err)
	} else if len(removed) > 0 {
		logger.Info("[layout] Kept %d archives, removed %d older copies", kept, len(removed))
	}

	state.reporter.Batch(res)
	return res, nil
}
