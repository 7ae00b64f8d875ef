package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hidroweb-scraper/models"
)

const (
	consolidatedPrefix = "estacao_hidroweb_novosregistros_"
	consolidatedExt    = ".csv"
)

// ConsolidatedFileName returns the dataset file name for a run on day.
func ConsolidatedFileName(day time.Time) string {
	return consolidatedPrefix + day.Format("2006-01-02") + consolidatedExt
}

// IsConsolidatedFile reports whether name follows the dataset naming scheme.
func IsConsolidatedFile(name string) bool {
	return strings.HasPrefix(name, consolidatedPrefix) && strings.HasSuffix(name, consolidatedExt)
}

// LatestConsolidated returns the most recently modified dataset in dir, or ""
// when there is none.
func LatestConsolidated(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("csv: read %q: %w", dir, err)
	}

	var best string
	var bestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !IsConsolidatedFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestMod) {
			best = filepath.Join(dir, e.Name())
			bestMod = info.ModTime()
		}
	}
	return best, nil
}

// DatasetWriter writes the consolidated dataset. Rows go to a temporary file
// that replaces the destination only on Commit, so an aborted run never
// leaves a truncated dataset behind.
type DatasetWriter struct {
	mu        sync.Mutex
	path      string
	tmpPath   string
	file      *os.File
	writer    *csv.Writer
	rows      int
	committed bool
}

// NewDatasetWriter prepares path for writing and emits the canonical header.
// Intermediate directories are created automatically.
func NewDatasetWriter(path string) (*DatasetWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", tmp, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(models.CotaColumns); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("csv: write header: %w", err)
	}

	return &DatasetWriter{path: path, tmpPath: tmp, file: f, writer: w}, nil
}

// Write appends records in canonical column order.
func (c *DatasetWriter) Write(records []models.CotaRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range records {
		if err := c.writer.Write(r.Fields()); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
		c.rows++
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Rows returns the number of data rows written so far.
func (c *DatasetWriter) Rows() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

// Path is the final destination of the dataset.
func (c *DatasetWriter) Path() string { return c.path }

// Commit flushes the file and moves it into place.
func (c *DatasetWriter) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("csv: close: %w", err)
	}
	if err := os.Rename(c.tmpPath, c.path); err != nil {
		return fmt.Errorf("csv: move into place: %w", err)
	}
	c.committed = true
	return nil
}

// Close discards the temporary file unless Commit succeeded.
func (c *DatasetWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committed {
		return nil
	}
	_ = c.file.Close()
	err := os.Remove(c.tmpPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
