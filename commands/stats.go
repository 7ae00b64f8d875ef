package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hidroweb-scraper/models"
	"hidroweb-scraper/services"
	"hidroweb-scraper/storage"
)

var statsList bool

func init() {
	statsCmd.Flags().BoolVar(&statsList, "list", false, "Also list the station codes in each folder.")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats [--list]",
	Short: "Shows what is stored in the download folders.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var all []models.FolderStats
		for _, d := range []storage.Destination{storage.Principal, storage.Consultadas} {
			dir := state.layout.Dir(d)
			st, err := storage.Stats(dir)
			if err != nil {
				return err
			}
			all = append(all, st)

			if statsList {
				codes, err := storage.ListStations(dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", d, strings.Join(codes, " "))
			}
		}
		state.reporter.Folders(all...)

		info := services.Inspect(state.layout.Dir(storage.Principal))
		state.reporter.Processing(info)
		if info.Consolidated != "" {
			if ci := services.VerifyConsolidated(info.Consolidated); !ci.Valid {
				state.logger.Warn("[consolidator] %s is not usable: %s", info.Consolidated, ci.Problem)
			}
		}
		return nil
	},
}
