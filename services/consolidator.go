package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"hidroweb-scraper/models"
	"hidroweb-scraper/storage"
	"hidroweb-scraper/utils"
)

// metadataLines precede the header row in a station export when the header
// cannot be located by name.
const metadataLines = 15

var (
	ErrMissingColumns = errors.New("missing expected columns")
	ErrEmptyTable     = errors.New("no data rows")
	ErrNoRecords      = errors.New("no records to consolidate")

	dateLayouts = []string{
		"02/01/2006",
		"2006-01-02",
		"2006-01-02 15:04:05",
		"02/01/2006 15:04:05",
		"01/2006",
		"2006-01",
		"2006/01/02",
	}
)

// Consolidator merges per-station exports into one canonical dataset.
type Consolidator struct {
	logger    *utils.Logger
	encodings []string
	workers   int
	now       func() time.Time
}

// NewConsolidator creates a Consolidator parsing up to workers files at once.
func NewConsolidator(logger *utils.Logger, workers int) *Consolidator {
	return &Consolidator{
		logger:    logger,
		encodings: DefaultEncodings,
		workers:   workers,
		now:       time.Now,
	}
}

type parsedFile struct {
	records []models.CotaRecord
	dropped int
	err     error
}

// FindExports lists the *_Cotas.csv files in dir, sorted by name.
func FindExports(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+storage.CotasSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Consolidate normalizes files, drops duplicate (station, date, hour) rows
// keeping the first, and writes the dataset into outDir. Files are merged in
// the order given, so the same input always yields the same output.
func (c *Consolidator) Consolidate(ctx context.Context, files []string, outDir string, progress ProgressFunc) (*models.ConsolidationReport, error) {
	rep := &models.ConsolidationReport{FilesFound: len(files), HourLabels: make(map[string]int)}
	report(progress, "consolidation", 35)

	results := make([]parsedFile, len(files))
	pool := utils.NewWorkerPool(c.workers, 0)
	var mu sync.Mutex
	done := 0

	for i, path := range files {
		i, path := i, path
		pool.Submit(func() {
			if ctx.Err() != nil {
				results[i] = parsedFile{err: ctx.Err()}
				return
			}
			recs, dropped, err := c.parseFile(path)
			results[i] = parsedFile{records: recs, dropped: dropped, err: err}

			mu.Lock()
			done++
			report(progress, "consolidation", 35+done*50/len(files))
			mu.Unlock()
		})
	}
	pool.Wait()
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	var all []models.CotaRecord
	for i, r := range results {
		name := filepath.Base(files[i])
		if r.err != nil {
			c.logger.Warn("[consolidator] Skipping %s: %v", name, r.err)
			rep.FilesErrored++
			continue
		}
		c.logger.Debug("[consolidator] %s: %d rows (%d dropped)", name, len(r.records), r.dropped)
		rep.FilesProcessed++
		rep.RowsDropped += r.dropped
		all = append(all, r.records...)
	}
	rep.RowsConsolidated = len(all)
	report(progress, "consolidation", 85)

	c.logger.Info("[consolidator] %d files processed, %d with errors, %d rows read",
		rep.FilesProcessed, rep.FilesErrored, rep.RowsConsolidated)
	if len(all) == 0 {
		return rep, ErrNoRecords
	}

	final := dedupe(all)
	rep.RowsFinal = len(final)
	rep.DuplicatesRemoved = len(all) - len(final)
	summarize(rep, final)
	report(progress, "consolidation", 90)

	report(progress, "consolidation", 95)
	out := filepath.Join(outDir, storage.ConsolidatedFileName(c.now()))
	if err := writeDataset(out, final); err != nil {
		return rep, err
	}
	rep.OutputPath = out
	report(progress, "consolidation", 100)

	c.logger.Info("[consolidator] Consolidated %d → %d rows (removed %d duplicates) into %s",
		rep.RowsConsolidated, rep.RowsFinal, rep.DuplicatesRemoved, out)
	return rep, nil
}

// ExtractAndConsolidate runs the full processing of a folder of archives:
// extraction of every *_Cotas.csv member into the same folder, then
// consolidation of all exports found there.
func (c *Consolidator) ExtractAndConsolidate(ctx context.Context, ex *Extractor, dir string, progress ProgressFunc) (*models.ConsolidationReport, error) {
	report(progress, "extraction", 0)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("consolidate: folder %q: %w", dir, err)
	}
	report(progress, "extraction", 5)

	xr, err := ex.ExtractAll(ctx, dir, dir, progress)
	if err != nil {
		return nil, err
	}

	files, err := FindExports(dir)
	if err != nil {
		return nil, err
	}

	rep, err := c.Consolidate(ctx, files, dir, progress)
	if rep != nil {
		rep.ArchivesFound = xr.ArchivesFound
		rep.ArchivesExtracted = xr.ArchivesFound - len(xr.Errored)
		rep.ArchivesErrored = len(xr.Errored)
	}
	return rep, err
}

func dedupe(records []models.CotaRecord) []models.CotaRecord {
	seen := utils.NewKeySet()
	out := make([]models.CotaRecord, 0, len(records))
	for _, r := range records {
		if seen.Add(r.Key()) {
			out = append(out, r)
		}
	}
	return out
}

func summarize(rep *models.ConsolidationReport, records []models.CotaRecord) {
	stations := make(map[string]struct{})
	for _, r := range records {
		stations[r.Station()] = struct{}{}
		rep.HourLabels[r.Hour()]++
		if rep.PeriodStart == "" || r.Date() < rep.PeriodStart {
			rep.PeriodStart = r.Date()
		}
		if r.Date() > rep.PeriodEnd {
			rep.PeriodEnd = r.Date()
		}
	}
	rep.UniqueStations = len(stations)
}

func writeDataset(path string, records []models.CotaRecord) error {
	w, err := storage.NewDatasetWriter(path)
	if err != nil {
		return err
	}
	return writeRecords(w, records)
}

func writeRecords(w storage.RecordWriter, records []models.CotaRecord) error {
	defer w.Close()

	if err := w.Write(records); err != nil {
		return err
	}
	return w.Commit()
}

// parseFile decodes path with the first encoding that yields a table.
func (c *Consolidator) parseFile(path string) ([]models.CotaRecord, int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	var lastErr error
	for _, enc := range c.encodings {
		text, err := decodeText(raw, enc)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", enc, err)
			continue
		}
		recs, dropped, err := parseExport(text)
		if errors.Is(err, ErrMissingColumns) || errors.Is(err, ErrEmptyTable) {
			return nil, 0, err
		}
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", enc, err)
			continue
		}
		return recs, dropped, nil
	}
	return nil, 0, fmt.Errorf("unreadable under every encoding: %w", lastErr)
}

// parseExport turns the text of one station export into canonical records.
// Rows whose date cannot be parsed are dropped and counted.
func parseExport(text string) ([]models.CotaRecord, int, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	start := headerLine(lines)
	if start >= len(lines) {
		return nil, 0, ErrEmptyTable
	}

	r := csv.NewReader(strings.NewReader(strings.Join(lines[start:], "\n")))
	r.Comma = ';'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, 0, ErrEmptyTable
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[headerKey(h)] = i
	}
	positions := make([]int, len(models.SourceColumns))
	var missing []string
	for i, col := range models.SourceColumns {
		j, ok := index[headerKey(col)]
		if !ok {
			missing = append(missing, col)
		}
		positions[i] = j
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var out []models.CotaRecord
	dropped := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read row: %w", err)
		}

		fields := make([]string, len(positions))
		for i, j := range positions {
			if j < len(rec) {
				fields[i] = strings.TrimSpace(rec[j])
			}
		}
		if fields[0] == "" {
			continue
		}

		period, ok := normalizeDate(fields[1])
		if !ok {
			dropped++
			continue
		}
		fields[1] = period
		fields[2] = normalizeHour(fields[2])
		for i := 3; i < len(fields); i++ {
			fields[i] = normalizeDecimal(fields[i])
		}

		record, err := models.NewCotaRecord(fields)
		if err != nil {
			dropped++
			continue
		}
		out = append(out, record)
	}

	if len(out) == 0 {
		return nil, dropped, ErrEmptyTable
	}
	return out, dropped, nil
}

// headerLine finds the row that starts with the station-code column, falling
// back to the fixed metadata length.
func headerLine(lines []string) int {
	for i, l := range lines {
		first, _, _ := strings.Cut(l, ";")
		if headerKey(first) == "estacaocodigo" {
			return i
		}
	}
	return metadataLines
}

func headerKey(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "\ufeff"))
	h = strings.TrimPrefix(h, "//")
	return strings.ToLower(strings.TrimSpace(h))
}

// normalizeDate converts a day/month/year date to a YYYY-MM period, trying
// other common layouts when the primary one fails.
func normalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01"), true
		}
	}
	return "", false
}

// normalizeHour maps a raw hour to "HH:00", or to the daily-mean label when
// it is blank or unreadable.
func normalizeHour(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return models.HourDailyMean
	}
	if strings.Contains(s, ":") {
		fields := strings.Fields(s)
		clock := fields[len(fields)-1]
		hh, _, _ := strings.Cut(clock, ":")
		if h, err := strconv.Atoi(hh); err == nil && h >= 0 && h < 24 {
			return fmt.Sprintf("%02d:00", h)
		}
		return s
	}
	if f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64); err == nil && f >= 0 && f < 24 {
		return fmt.Sprintf("%02d:00", int(f))
	}
	return models.HourDailyMean
}

// normalizeDecimal rewrites a decimal comma as a point.
func normalizeDecimal(s string) string {
	if strings.Contains(s, ",") && !strings.Contains(s, ".") {
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

// VerifyConsolidated checks that a dataset file is present, nonempty and
// carries the columns the loader needs.
func VerifyConsolidated(path string) models.ConsolidatedFileInfo {
	info := models.ConsolidatedFileInfo{Path: path}
	st, err := os.Stat(path)
	if err != nil {
		info.Problem = "file not found"
		return info
	}
	info.SizeBytes = st.Size()
	if st.Size() == 0 {
		info.Problem = "file is empty"
		return info
	}

	header, rows, err := readDataset(path)
	if err != nil {
		info.Problem = err.Error()
		return info
	}
	idx := indexHeader(header)
	if missing := missingColumns(idx, models.RequiredColumns); len(missing) > 0 {
		info.Problem = "missing columns: " + strings.Join(missing, ", ")
		return info
	}

	stations := make(map[string]struct{})
	for _, r := range rows {
		stations[fieldAt(r, idx["codigo_estacao"])] = struct{}{}
		d := fieldAt(r, idx["data"])
		if d == "" {
			continue
		}
		if info.PeriodStart == "" || d < info.PeriodStart {
			info.PeriodStart = d
		}
		if d > info.PeriodEnd {
			info.PeriodEnd = d
		}
	}
	info.Rows = len(rows)
	info.Stations = len(stations)
	info.Valid = true
	return info
}

// Inspect reports what is on disk in dir ahead of extraction and loading.
func Inspect(dir string) models.ProcessingInfo {
	info := models.ProcessingInfo{Folder: dir}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return info
	}
	info.FolderExists = true

	if archives, err := storage.ListArchives(dir, ""); err == nil {
		info.Archives = len(archives)
	}
	if exports, err := FindExports(dir); err == nil {
		info.TempCSVFiles = len(exports)
	}
	if latest, err := storage.LatestConsolidated(dir); err == nil {
		info.Consolidated = latest
	}
	info.ReadyToExtract = info.Archives > 0
	info.ReadyToLoad = info.Consolidated != ""
	return info
}
