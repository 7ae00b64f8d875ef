package commands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var runOpts struct {
	file    string
	table   string
	cleanup bool
	publish bool
}

func init() {
	runCmd.Flags().StringVar(&runOpts.file, "file", "", "Read station codes from this file.")
	runCmd.Flags().StringVar(&runOpts.table, "table", "", "Destination table.")
	runCmd.Flags().BoolVar(&runOpts.cleanup, "cleanup", true, "Remove extracted CSV files after consolidation.")
	runCmd.Flags().BoolVar(&runOpts.publish, "publish", false, "Upload the consolidated file to S3.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [codes...] [--file stations.txt]",
	Short: "Downloads, consolidates and loads in one go.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		codes, err := collectStations(args, runOpts.file)
		if err != nil {
			return err
		}

		res, err := downloadStations(ctx, codes, destinationFor(false))
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(res.Downloaded) == 0 {
			return fmt.Errorf("no station was downloaded; nothing to consolidate")
		}

		runID := res.RunID
		if runID == "" {
			runID = uuid.NewString()
		}
		rep, err := consolidate(ctx, res.Destination, runOpts.cleanup, runOpts.publish, runID)
		if err != nil {
			return err
		}

		_, err = loadDataset(ctx, rep.OutputPath, runOpts.table, runID)
		return err
	},
}
