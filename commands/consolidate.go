package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"hidroweb-scraper/models"
	"hidroweb-scraper/services"
	"hidroweb-scraper/storage"
)

var consolidateOpts struct {
	dir     string
	cleanup bool
	publish bool
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateOpts.dir, "dir", "", "Folder of station archives (default: principal folder).")
	consolidateCmd.Flags().BoolVar(&consolidateOpts.cleanup, "cleanup", false, "Remove extracted CSV files afterwards.")
	consolidateCmd.Flags().BoolVar(&consolidateOpts.publish, "publish", false, "Upload the consolidated file to S3.")
	rootCmd.AddCommand(consolidateCmd)
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [--dir path] [--cleanup] [--publish]",
	Short: "Extracts every station archive and merges the series into one CSV.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := consolidateOpts.dir
		if dir == "" {
			dir = state.layout.Dir(storage.Principal)
		}
		_, err := consolidate(cmd.Context(), dir, consolidateOpts.cleanup, consolidateOpts.publish, uuid.NewString())
		return err
	},
}

func consolidate(ctx context.Context, dir string, cleanup, publish bool, runID string) (*models.ConsolidationReport, error) {
	logger := state.logger.With(runID)

	ex := services.NewExtractor(logger)
	c := services.NewConsolidator(logger, state.cfg.ExtractWorkers)
	rep, err := c.ExtractAndConsolidate(ctx, ex, dir, func(stage string, current, total int) {
		logger.Debug("[consolidator] %s %d/%d", stage, current, total)
	})
	if err != nil {
		return rep, err
	}
	state.reporter.Consolidation(rep)

	if cleanup {
		if _, err := ex.CleanupTemporary(dir, false); err != nil {
			logger.Warn("[extractor] Cleanup failed: %v", err)
		}
	}

	if info := services.VerifyConsolidated(rep.OutputPath); !info.Valid {
		return rep, fmt.Errorf("consolidated file is not usable: %s", info.Problem)
	}

	if publish {
		if err := publishDataset(ctx, rep, runID); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func publishDataset(ctx context.Context, rep *models.ConsolidationReport, runID string) error {
	cfg := state.cfg
	if cfg.S3Bucket == "" {
		return fmt.Errorf("publish requested but HIDROWEB_S3_BUCKET is not set")
	}
	pub, err := storage.NewS3Publisher(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion, state.logger)
	if err != nil {
		return err
	}
	return publishTo(ctx, pub, rep, runID)
}

func publishTo(ctx context.Context, pub storage.Publisher, rep *models.ConsolidationReport, runID string) error {
	_, err := pub.Publish(ctx, rep.OutputPath, map[string]string{
		"run-id":   runID,
		"rows":     strconv.Itoa(rep.RowsFinal),
		"stations": strconv.Itoa(rep.UniqueStations),
		"period":   rep.PeriodStart + "/" + rep.PeriodEnd,
	})
	return err
}
