package storage

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CotasSuffix names the archive member holding water-level readings.
const CotasSuffix = "_Cotas.csv"

var (
	ErrEmptyFile = errors.New("file is empty")
	ErrNotZip    = errors.New("file is not a zip archive")
	ErrNotStable = errors.New("file did not settle in time")
	zipSignature = []byte("PK")
)

// WaitForStableFile polls path until it exists with a nonzero size that stays
// unchanged for window, or until timeout elapses.
func WaitForStableFile(ctx context.Context, path string, timeout, poll, window time.Duration) (int64, error) {
	deadline := time.Now().Add(timeout)
	var lastSize int64 = -1
	var since time.Time

	for {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			if info.Size() != lastSize {
				lastSize = info.Size()
				since = time.Now()
			} else if time.Since(since) >= window {
				return lastSize, nil
			}
		}

		if time.Now().After(deadline) {
			return 0, fmt.Errorf("%w: %s", ErrNotStable, filepath.Base(path))
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// VerifyZip checks that path is nonempty and starts with the zip signature.
func VerifyZip(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 2)
	n, err := io.ReadFull(f, head)
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyFile, filepath.Base(path))
	}
	if err != nil || !bytes.Equal(head, zipSignature) {
		return fmt.Errorf("%w: %s", ErrNotZip, filepath.Base(path))
	}
	return nil
}

// ArchiveHasMember reports whether the zip at path holds a file whose name
// ends with suffix.
func ArchiveHasMember(path, suffix string) (bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, fmt.Errorf("archive: open %q: %w", path, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if strings.HasSuffix(f.Name, suffix) {
			return true, nil
		}
	}
	return false, nil
}

// Placement describes what PlaceArchive did with a fresh download.
type Placement struct {
	Path      string
	Unchanged bool
	Replaced  int
}

// PlaceArchive moves a freshly downloaded archive for station into destDir.
// When the newest existing archive has the same byte size the download is
// discarded and the existing file reported as current. Otherwise every
// existing archive of the station is removed before the move.
func PlaceArchive(tempPath, destDir, station string) (Placement, error) {
	info, err := os.Stat(tempPath)
	if err != nil {
		return Placement{}, fmt.Errorf("archive: stat download: %w", err)
	}

	existing, err := NewestArchive(destDir, station)
	if err != nil {
		return Placement{}, err
	}
	if existing != nil && existing.Size == info.Size() {
		_ = os.Remove(tempPath)
		return Placement{Path: existing.Path, Unchanged: true}, nil
	}

	removed, err := RemoveStationArchives(destDir, station)
	if err != nil {
		return Placement{}, err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return Placement{}, fmt.Errorf("archive: create %q: %w", destDir, err)
	}

	dst := filepath.Join(destDir, filepath.Base(tempPath))
	if err := moveFile(tempPath, dst); err != nil {
		return Placement{}, err
	}
	return Placement{Path: dst, Replaced: removed}, nil
}
