package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"hidroweb-scraper/models"
	"hidroweb-scraper/storage"
)

// Reporter renders run summaries as tables.
type Reporter struct {
	out io.Writer
}

func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{out: out}
}

func (r *Reporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// Batch prints the partition of a download run.
func (r *Reporter) Batch(res *models.BatchResult) {
	t := r.newTable("Download summary")
	t.AppendHeader(table.Row{"Outcome", "Stations", "Codes"})
	t.AppendRow(table.Row{"downloaded", len(res.Downloaded), joinCodes(res.Downloaded)})
	t.AppendRow(table.Row{"not found", len(res.NotFound), joinCodes(res.NotFound)})
	t.AppendRow(table.Row{"no data", len(res.NoData), joinCodes(res.NoData)})
	t.AppendRow(table.Row{"failed", len(res.Failed), joinCodes(res.Failed)})
	if len(res.Skipped) > 0 {
		t.AppendRow(table.Row{"not attempted", len(res.Skipped), joinCodes(res.Skipped)})
	}
	t.AppendFooter(table.Row{"total", res.Total(), fmt.Sprintf("%d passes · run %s", res.Passes, res.RunID)})
	t.Render()

	if res.Interrupted {
		fmt.Fprintln(r.out, "  Run stopped on request; remaining stations were not attempted.")
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(r.out, "  %d stations still failing after %d passes need attention.\n", len(res.Failed), res.Passes)
	}
}

// Consolidation prints extraction and consolidation counts.
func (r *Reporter) Consolidation(rep *models.ConsolidationReport) {
	t := r.newTable("Consolidation summary")
	t.AppendRows([]table.Row{
		{"archives found", rep.ArchivesFound},
		{"archives with errors", rep.ArchivesErrored},
		{"files found", rep.FilesFound},
		{"files processed", rep.FilesProcessed},
		{"files with errors", rep.FilesErrored},
		{"rows consolidated", rep.RowsConsolidated},
		{"rows dropped (bad date)", rep.RowsDropped},
		{"duplicates removed", rep.DuplicatesRemoved},
		{"final rows", rep.RowsFinal},
		{"stations", rep.UniqueStations},
		{"period", periodOf(rep.PeriodStart, rep.PeriodEnd)},
		{"output", rep.OutputPath},
	})
	t.Render()

	if len(rep.HourLabels) > 0 {
		h := r.newTable("Hour labels")
		h.AppendHeader(table.Row{"Hour", "Rows"})
		labels := make([]string, 0, len(rep.HourLabels))
		for k := range rep.HourLabels {
			labels = append(labels, k)
		}
		sort.Strings(labels)
		for _, k := range labels {
			h.AppendRow(table.Row{k, rep.HourLabels[k]})
		}
		h.Render()
	}
}

// Load prints the loader report, keeping the estimate and the authoritative
// delta side by side.
func (r *Reporter) Load(rep *models.LoadReport) {
	t := r.newTable("Load summary")
	t.AppendRows([]table.Row{
		{"table", rep.Table},
		{"source", rep.Source},
		{"rows read", rep.RowsRead},
		{"rows prepared", rep.RowsPrepared},
		{"rows rejected", rep.RowsRejected},
		{"estimated new (sample)", fmt.Sprintf("%d (%d of %d sampled already stored)", rep.EstimatedNew, rep.SampleExisting, rep.SampleSize)},
		{"rows before", rep.CountBefore},
		{"rows after", rep.CountAfter},
		{"inserted", rep.Inserted},
		{"skipped (already stored)", rep.Skipped},
		{"batches", fmt.Sprintf("%d (final size %d)", rep.Batches, rep.FinalBatchSize)},
		{"duration", rep.Duration.Round(time.Millisecond).String()},
	})
	if rep.Partial {
		t.AppendFooter(table.Row{"status", fmt.Sprintf("partial: %d rows committed", rep.RowsCommitted)})
	}
	t.Render()
}

// Folders prints archive statistics per destination folder.
func (r *Reporter) Folders(stats ...models.FolderStats) {
	t := r.newTable("Station folders")
	t.AppendHeader(table.Row{"Folder", "Files", "Stations", "Size (MiB)"})
	for _, s := range stats {
		t.AppendRow(table.Row{s.Path, s.Files, s.UniqueStations, fmt.Sprintf("%.2f", s.MegaBytes())})
	}
	t.Render()
}

// Processing prints readiness information for a folder.
func (r *Reporter) Processing(info models.ProcessingInfo) {
	t := r.newTable("Processing status")
	t.AppendRows([]table.Row{
		{"folder", info.Folder},
		{"exists", info.FolderExists},
		{"archives", info.Archives},
		{"temporary csv files", info.TempCSVFiles},
		{"latest consolidated", info.Consolidated},
		{"ready to extract", info.ReadyToExtract},
		{"ready to load", info.ReadyToLoad},
	})
	t.Render()
}

// Table prints destination table statistics.
func (r *Reporter) Table(st models.TableStats) {
	t := r.newTable("Table " + st.Table)
	t.AppendRows([]table.Row{
		{"rows", st.Rows},
		{"stations", st.Stations},
		{"period", periodOf(st.MinDate, st.MaxDate)},
	})
	t.Render()
}

// Locks prints relation locks found on the destination tables.
func (r *Reporter) Locks(locks []storage.LockInfo) {
	if len(locks) == 0 {
		fmt.Fprintln(r.out, "  No locks held on ana_* tables.")
		return
	}
	t := r.newTable("Active locks")
	t.AppendHeader(table.Row{"Table", "Mode", "Granted", "State"})
	for _, l := range locks {
		t.AppendRow(table.Row{l.Table, l.Mode, l.Granted, l.State})
	}
	t.Render()
}

// StationRows prints the result of a station query.
func (r *Reporter) StationRows(rows []models.StationRow) {
	t := r.newTable("Station readings")
	t.AppendHeader(table.Row{"Station", "Period", "Hour", "Max", "Min", "Mean"})
	for _, row := range rows {
		t.AppendRow(table.Row{row.Station, row.Date, row.Hour, fmtFloat(row.Max), fmtFloat(row.Min), fmtFloat(row.Mean)})
	}
	t.Render()
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}

func periodOf(start, end string) string {
	if start == "" && end == "" {
		return "-"
	}
	return start + " .. " + end
}

// joinCodes lists at most a dozen codes to keep rows readable.
func joinCodes(codes []string) string {
	const limit = 12
	if len(codes) <= limit {
		return strings.Join(codes, ", ")
	}
	return strings.Join(codes[:limit], ", ") + fmt.Sprintf(" (+%d)", len(codes)-limit)
}
