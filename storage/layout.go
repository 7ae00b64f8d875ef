package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"hidroweb-scraper/models"
)

// Destination selects which folder finished downloads land in.
type Destination int

const (
	Principal Destination = iota
	Consultadas
)

func (d Destination) String() string {
	if d == Consultadas {
		return "consultadas"
	}
	return "principal"
}

var (
	// archiveRegexp matches Estacao_<code>_CSV_<YYYY-MM-DD>T....zip
	archiveRegexp = regexp.MustCompile(`^Estacao_(\d+)_CSV_(\d{4}-\d{2}-\d{2})T.*\.zip$`)
	// suggestedRegexp only needs the station code.
	suggestedRegexp = regexp.MustCompile(`Estacao_(\d+)_CSV_`)
)

// Layout locates the working folders of a run.
type Layout struct {
	Base           string
	ConsultadasDir string
	Data           string
	Scratch        string
}

// NewLayout derives every folder from base and scratch.
func NewLayout(base, scratch string) *Layout {
	return &Layout{
		Base:           base,
		ConsultadasDir: filepath.Join(base, "Consultadas"),
		Data:           filepath.Join(base, "Scripts", "dados"),
		Scratch:        scratch,
	}
}

// Ensure creates every folder that does not exist yet.
func (l *Layout) Ensure() error {
	for _, dir := range []string{l.Base, l.ConsultadasDir, l.Data, l.Scratch} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("layout: create %q: %w", dir, err)
		}
	}
	return nil
}

// Dir returns the folder for a destination.
func (l *Layout) Dir(d Destination) string {
	if d == Consultadas {
		return l.ConsultadasDir
	}
	return l.Base
}

// Archive is one station archive found on disk.
type Archive struct {
	Path    string
	Name    string
	Station string
	Date    time.Time
	Size    int64
}

// ParseArchiveName extracts the station code and embedded date from an
// archive file name.
func ParseArchiveName(name string) (station string, date time.Time, ok bool) {
	m := archiveRegexp.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", m[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], d, true
}

// StationFromSuggested returns the station code embedded in a browser's
// suggested download file name.
func StationFromSuggested(name string) (string, bool) {
	m := suggestedRegexp.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ListArchives returns every station archive in dir, optionally only those of
// one station. A missing dir yields no archives.
func ListArchives(dir, station string) ([]Archive, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("layout: read %q: %w", dir, err)
	}

	var out []Archive
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		code, date, ok := ParseArchiveName(e.Name())
		if !ok || (station != "" && code != station) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Archive{
			Path:    filepath.Join(dir, e.Name()),
			Name:    e.Name(),
			Station: code,
			Date:    date,
			Size:    info.Size(),
		})
	}
	return out, nil
}

// sortNewestFirst orders by embedded date, then by size, both descending.
func sortNewestFirst(archives []Archive) {
	sort.SliceStable(archives, func(i, j int) bool {
		if !archives[i].Date.Equal(archives[j].Date) {
			return archives[i].Date.After(archives[j].Date)
		}
		if archives[i].Size != archives[j].Size {
			return archives[i].Size > archives[j].Size
		}
		return archives[i].Name > archives[j].Name
	})
}

// NewestArchive returns the newest archive of station in dir.
func NewestArchive(dir, station string) (*Archive, error) {
	archives, err := ListArchives(dir, station)
	if err != nil || len(archives) == 0 {
		return nil, err
	}
	sortNewestFirst(archives)
	return &archives[0], nil
}

// DedupeStation keeps the newest archive of station in dir (ties broken by
// larger size) and deletes the others.
func DedupeStation(dir, station string) (kept *Archive, removed []string, err error) {
	archives, err := ListArchives(dir, station)
	if err != nil || len(archives) == 0 {
		return nil, nil, err
	}
	sortNewestFirst(archives)

	for _, a := range archives[1:] {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &archives[0], removed, fmt.Errorf("layout: remove %q: %w", a.Path, err)
		}
		removed = append(removed, a.Name)
	}
	return &archives[0], removed, nil
}

// DedupeAll runs DedupeStation for every station present in dir.
func DedupeAll(dir string) (kept int, removed []string, err error) {
	stations, err := ListStations(dir)
	if err != nil {
		return 0, nil, err
	}
	for _, code := range stations {
		k, r, err := DedupeStation(dir, code)
		if err != nil {
			return kept, removed, err
		}
		if k != nil {
			kept++
		}
		removed = append(removed, r...)
	}
	return kept, removed, nil
}

// ListStations returns the sorted station codes with an archive in dir.
func ListStations(dir string) ([]string, error) {
	archives, err := ListArchives(dir, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, a := range archives {
		if _, ok := seen[a.Station]; ok {
			continue
		}
		seen[a.Station] = struct{}{}
		out = append(out, a.Station)
	}
	sort.Strings(out)
	return out, nil
}

// RemoveStationArchives deletes every archive of station in dir.
func RemoveStationArchives(dir, station string) (int, error) {
	archives, err := ListArchives(dir, station)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range archives {
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("layout: remove %q: %w", a.Path, err)
		}
		n++
	}
	return n, nil
}

// ClearStaleScratch removes archives and partial downloads in the scratch
// folder that belong to any station other than keep.
func ClearStaleScratch(dir, keep string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("layout: read scratch %q: %w", dir, err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		code, isStation := StationFromSuggested(name)
		partial := strings.HasSuffix(name, ".crdownload") || isGUIDName(name)
		if (isStation && code == keep) || (!isStation && !partial) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err == nil {
			n++
		}
	}
	return n, nil
}

var guidRegexp = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// isGUIDName matches the names Chrome gives downloads before they are renamed.
func isGUIDName(name string) bool {
	return guidRegexp.MatchString(name)
}

// MoveArchives moves station archives from src to dst. An empty stations
// slice moves everything.
func MoveArchives(src, dst string, stations []string) (int, error) {
	want := make(map[string]struct{}, len(stations))
	for _, s := range stations {
		want[s] = struct{}{}
	}
	archives, err := ListArchives(src, "")
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return 0, fmt.Errorf("layout: create %q: %w", dst, err)
	}

	n := 0
	for _, a := range archives {
		if len(want) > 0 {
			if _, ok := want[a.Station]; !ok {
				continue
			}
		}
		if err := moveFile(a.Path, filepath.Join(dst, a.Name)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ClearFolder deletes every station archive in dir.
func ClearFolder(dir string) (int, error) {
	archives, err := ListArchives(dir, "")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range archives {
		if err := os.Remove(a.Path); err == nil {
			n++
		}
	}
	return n, nil
}

// Stats summarizes the archives stored in dir.
func Stats(dir string) (models.FolderStats, error) {
	archives, err := ListArchives(dir, "")
	if err != nil {
		return models.FolderStats{Path: dir}, err
	}
	st := models.FolderStats{Path: dir, Files: len(archives)}
	stations := make(map[string]struct{})
	for _, a := range archives {
		st.TotalBytes += a.Size
		stations[a.Station] = struct{}{}
	}
	st.UniqueStations = len(stations)
	return st, nil
}

// moveFile renames src to dst, copying when the rename crosses devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("layout: read %q: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("layout: write %q: %w", dst, err)
	}
	return os.Remove(src)
}
