package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"hidroweb-scraper/storage"
)

var organizeOpts struct {
	consultadas bool
	move        string
	clear       bool
}

func init() {
	organizeCmd.Flags().BoolVar(&organizeOpts.consultadas, "consultadas", false, "Work on the Consultadas folder.")
	organizeCmd.Flags().StringVar(&organizeOpts.move, "move", "", "Move these stations (or \"all\") to the other folder.")
	organizeCmd.Flags().BoolVar(&organizeOpts.clear, "clear", false, "Delete every station archive in the folder.")
	rootCmd.AddCommand(organizeCmd)
}

var organizeCmd = &cobra.Command{
	Use:   "organize [--consultadas] [--move codes|all] [--clear]",
	Short: "Keeps one archive per station, or moves or clears archives.",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := state.logger
		from := destinationFor(organizeOpts.consultadas)
		dir := state.layout.Dir(from)

		switch {
		case organizeOpts.clear:
			n, err := storage.ClearFolder(dir)
			if err != nil {
				return err
			}
			logger.Info("[layout] Removed %d archives from %s", n, dir)

		case organizeOpts.move != "":
			to := destinationFor(!organizeOpts.consultadas)
			var stations []string
			if organizeOpts.move != "all" {
				codes, rejected := ParseStations(organizeOpts.move)
				if len(rejected) > 0 || len(codes) == 0 {
					return fmt.Errorf("invalid station list %q", organizeOpts.move)
				}
				stations = codes
			}
			n, err := storage.MoveArchives(dir, state.layout.Dir(to), stations)
			if err != nil {
				return err
			}
			logger.Info("[layout] Moved %d archives from %s to %s", n, from, to)

		default:
			kept, removed, err := storage.DedupeAll(dir)
			if err != nil {
				return err
			}
			logger.Info("[layout] %s: kept %d archives, removed %d duplicates", from, kept, len(removed))
			for _, p := range removed {
				logger.Debug("[layout] Removed %s", p)
			}
		}

		st, err := storage.Stats(dir)
		if err != nil {
			return err
		}
		state.reporter.Folders(st)
		return nil
	},
}
