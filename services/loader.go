package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"hidroweb-scraper/models"
	"hidroweb-scraper/storage"
	"hidroweb-scraper/utils"
)

// maxLoggedRejections caps how many row conversion problems are logged.
const maxLoggedRejections = 5

var ErrNoRows = errors.New("no valid rows to load")

// LoaderOptions tunes a Loader.
type LoaderOptions struct {
	Table            string
	SampleSize       int
	StatementTimeout time.Duration
	MinBatchSize     int
	Progress         func(committed, total int)
}

// Loader turns a consolidated dataset into typed rows and inserts them
// without ever touching rows that already exist.
type Loader struct {
	store  storage.CotaStore
	logger *utils.Logger
	opts   LoaderOptions
}

func NewLoader(store storage.CotaStore, logger *utils.Logger, opts LoaderOptions) *Loader {
	if opts.SampleSize <= 0 {
		opts.SampleSize = 100
	}
	return &Loader{store: store, logger: logger, opts: opts}
}

// Load inserts the rows of csvPath. The returned report is filled in as far
// as the load got, also when an error is returned.
func (l *Loader) Load(ctx context.Context, csvPath, runID string) (*models.LoadReport, error) {
	started := time.Now()
	rep := &models.LoadReport{RunID: runID, Source: csvPath}
	defer func() { rep.Duration = time.Since(started) }()

	table, err := l.store.ResolveTable(ctx, l.opts.Table)
	if err != nil {
		return rep, err
	}
	rep.Table = table

	release, err := l.store.AcquireLoadLock(ctx, table)
	if err != nil {
		return rep, err
	}
	defer release()

	header, records, err := readDataset(csvPath)
	if err != nil {
		return rep, err
	}
	rep.RowsRead = len(records)

	rows, rejected, err := PrepareRows(header, records, l.logger)
	if err != nil {
		return rep, err
	}
	rep.RowsPrepared = len(rows)
	rep.RowsRejected = rejected
	l.logger.Info("[loader] %d rows prepared from %s (%d rejected)", len(rows), csvPath, rejected)
	if len(rows) == 0 {
		return rep, ErrNoRows
	}

	l.estimate(ctx, table, rows, rep)

	before, err := l.store.Stats(ctx, table)
	if err != nil {
		return rep, err
	}
	rep.CountBefore = before.Rows

	res, insertErr := l.store.Insert(ctx, table, rows, storage.InsertOptions{
		MinBatchSize:     l.opts.MinBatchSize,
		StatementTimeout: l.opts.StatementTimeout,
		Progress:         l.opts.Progress,
	})
	rep.Batches = res.Batches
	rep.FinalBatchSize = res.FinalBatchSize
	rep.RowsCommitted = res.RowsCommitted
	rep.Partial = insertErr != nil && res.RowsCommitted > 0

	// counted after a failure too, committed batches stay in place
	after, err := l.store.Stats(context.WithoutCancel(ctx), table)
	if err != nil {
		return rep, errors.Join(insertErr, err)
	}
	rep.CountAfter = after.Rows
	rep.Inserted = rep.CountAfter - rep.CountBefore
	rep.Skipped = int64(rep.RowsCommitted) - rep.Inserted

	if insertErr != nil {
		l.logger.Error("[loader] Load stopped after %d of %d rows: %v", res.RowsCommitted, len(rows), insertErr)
		return rep, insertErr
	}
	l.logger.Info("[loader] %d new rows in %s (%d already present)", rep.Inserted, table, rep.Skipped)
	return rep, nil
}

// estimate samples the first rows' primary keys to guess how many rows are
// already stored. Failures only cost the estimate.
func (l *Loader) estimate(ctx context.Context, table string, rows [][]any, rep *models.LoadReport) {
	n := l.opts.SampleSize
	if n > len(rows) {
		n = len(rows)
	}
	keys := make([][]any, n)
	for i := 0; i < n; i++ {
		keys[i] = rows[i][:len(models.PrimaryKeyColumns)]
	}

	existing, err := l.store.CountExisting(ctx, table, keys)
	if err != nil {
		l.logger.Warn("[loader] Duplicate estimate unavailable: %v", err)
		return
	}
	rep.SampleSize = n
	rep.SampleExisting = existing
	rep.EstimatedExisting = existing * len(rows) / n
	rep.EstimatedNew = len(rows) - rep.EstimatedExisting
	l.logger.Info("[loader] Sample of %d rows: %d already stored, estimate ~%d new of %d",
		n, existing, rep.EstimatedNew, len(rows))
}

// PrepareRows converts dataset records into 73-value rows in table order.
// Rows with an unusable station code or date, or with a field count that
// does not match the header, are rejected and counted.
func PrepareRows(header []string, records [][]string, logger *utils.Logger) ([][]any, int, error) {
	idx := indexHeader(header)
	if missing := missingColumns(idx, models.RequiredColumns); len(missing) > 0 {
		return nil, 0, fmt.Errorf("loader: %w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	rows := make([][]any, 0, len(records))
	rejected := 0
	reject := func(line int, reason string) {
		rejected++
		if rejected <= maxLoggedRejections {
			logger.Warn("[loader] Row %d rejected: %s", line, reason)
		}
	}

	for n, rec := range records {
		line := n + 2
		if len(rec) != len(header) {
			reject(line, fmt.Sprintf("%d fields, header has %d", len(rec), len(header)))
			continue
		}
		row, err := convertRow(rec, idx)
		if err != nil {
			reject(line, err.Error())
			continue
		}
		if len(row) != models.CotaFieldCount {
			reject(line, models.ErrFieldCount.Error())
			continue
		}
		rows = append(rows, row)
	}

	if rejected > maxLoggedRejections {
		logger.Warn("[loader] ... %d more rows rejected", rejected-maxLoggedRejections)
	}
	return rows, rejected, nil
}

func convertRow(rec []string, idx map[string]int) ([]any, error) {
	row := make([]any, len(models.CotaColumns))
	for i, col := range models.CotaColumns {
		raw := ""
		if j, ok := idx[col]; ok {
			raw = strings.TrimSpace(rec[j])
		}

		switch {
		case i == 0:
			code, ok := parseInt(raw)
			if !ok {
				return nil, fmt.Errorf("invalid station code %q", raw)
			}
			row[i] = code
		case i == 1:
			if raw == "" {
				return nil, errors.New("missing date")
			}
			row[i] = raw
		case i == 2:
			if raw == "" {
				raw = models.HourDailyMean
			}
			row[i] = raw
		case i == 3 || i == 4:
			row[i] = intOr(raw, 1)
		case strings.HasSuffix(col, "_status"):
			row[i] = intOr(raw, 0)
		default:
			row[i] = floatOrNil(raw)
		}
	}
	return row, nil
}

// parseInt accepts integers and float-formatted integers such as "3.0".
func parseInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

func intOr(s string, fallback int64) int64 {
	if n, ok := parseInt(s); ok {
		return n
	}
	return fallback
}

func floatOrNil(s string) any {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return f
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[headerKey(h)] = i
	}
	return idx
}

func missingColumns(idx map[string]int, required []string) []string {
	var missing []string
	for _, c := range required {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func fieldAt(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// readDataset reads a consolidated CSV as UTF-8, falling back to Latin-1.
func readDataset(path string) ([]string, [][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loader: read %q: %w", path, err)
	}

	text, err := decodeText(raw, "utf-8")
	if err != nil {
		if text, err = decodeText(raw, "iso-8859-1"); err != nil {
			return nil, nil, fmt.Errorf("loader: decode %q: %w", path, err)
		}
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("loader: %q: %w", path, ErrEmptyTable)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loader: header of %q: %w", path, err)
	}

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("loader: parse %q: %w", path, err)
		}
		records = append(records, rec)
	}
	return header, records, nil
}
