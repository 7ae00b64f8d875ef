package services

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"hidroweb-scraper/storage"
	"hidroweb-scraper/utils"
)

// ProgressFunc receives (stage, current, total) updates.
type ProgressFunc func(stage string, current, total int)

// ExtractResult lists what ExtractAll produced.
type ExtractResult struct {
	ArchivesFound int
	Extracted     []string
	Errored       []string
}

// Extractor pulls the water-level member out of station archives.
type Extractor struct {
	logger *utils.Logger
	suffix string
}

func NewExtractor(logger *utils.Logger) *Extractor {
	return &Extractor{logger: logger, suffix: storage.CotasSuffix}
}

// ExtractAll extracts the *_Cotas.csv member of every station archive in dir
// into outDir. A failing archive is logged and skipped.
func (e *Extractor) ExtractAll(ctx context.Context, dir, outDir string, progress ProgressFunc) (*ExtractResult, error) {
	archives, err := storage.ListArchives(dir, "")
	if err != nil {
		return nil, err
	}
	sort.Slice(archives, func(i, j int) bool { return archives[i].Name < archives[j].Name })

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("extract: create %q: %w", outDir, err)
	}

	res := &ExtractResult{ArchivesFound: len(archives)}
	e.logger.Info("[extractor] %d archives found in %s", len(archives), dir)
	report(progress, "extraction", 15)

	for i, a := range archives {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		files, err := e.extractOne(a.Path, outDir)
		if err != nil {
			e.logger.Warn("[extractor] %s: %v", a.Name, err)
			res.Errored = append(res.Errored, a.Name)
		} else {
			if len(files) == 0 {
				e.logger.Debug("[extractor] %s has no %s member", a.Name, e.suffix)
			}
			res.Extracted = append(res.Extracted, files...)
		}
		report(progress, "extraction", 15+(i+1)*20/len(archives))
	}

	e.logger.Info("[extractor] Extracted %d files from %d archives (%d errors)",
		len(res.Extracted), len(archives), len(res.Errored))
	return res, nil
}

func (e *Extractor) extractOne(path, outDir string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer r.Close()

	var out []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, e.suffix) {
			continue
		}
		// members are flattened so an entry can never escape outDir
		dst := filepath.Join(outDir, filepath.Base(f.Name))
		if err := copyMember(f, dst); err != nil {
			return out, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		out = append(out, dst)
	}
	return out, nil
}

func copyMember(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// CleanupTemporary removes extracted member files and, when archives is set,
// the station archives in dir.
func (e *Extractor) CleanupTemporary(dir string, archives bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("extract: read %q: %w", dir, err)
	}
	n := 0
	for _, ent := range entries {
		name := ent.Name()
		_, _, isArchive := storage.ParseArchiveName(name)
		if ent.IsDir() || !(strings.HasSuffix(name, e.suffix) || (archives && isArchive)) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			n++
		}
	}
	e.logger.Info("[extractor] Removed %d temporary files from %s", n, dir)
	return n, nil
}

func report(progress ProgressFunc, stage string, pct int) {
	if progress != nil {
		progress(stage, pct, 100)
	}
}
