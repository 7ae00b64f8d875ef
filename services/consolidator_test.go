package services

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hidroweb-scraper/models"
	"hidroweb-scraper/storage"
	"hidroweb-scraper/utils"
)

func newTestConsolidator() *Consolidator {
	c := NewConsolidator(utils.NewQuietLogger(), 2)
	c.now = func() time.Time { return time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC) }
	return c
}

func readOutput(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"01/03/1990", "1990-03", true},
		{"1990-03-01", "1990-03", true},
		{"01/03/1990 00:00:00", "1990-03", true},
		{"03/1990", "1990-03", true},
		{"", "", false},
		{"31/02/1990", "", false},
		{"garbage", "", false},
	}
	for _, tt := range tests {
		got, ok := normalizeDate(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("normalizeDate(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeHour(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "MEDIA"},
		{"nan", "MEDIA"},
		{"7", "07:00"},
		{"7.0", "07:00"},
		{"17", "17:00"},
		{"07:00", "07:00"},
		{"01/01/1900 17:00:00", "17:00"},
		{"xx:yy", "xx:yy"},
		{"manhã", "MEDIA"},
		{"99", "MEDIA"},
	}
	for _, tt := range tests {
		if got := normalizeHour(tt.in); got != tt.want {
			t.Errorf("normalizeHour(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestHeaderLineFallsBackToMetadataLength(t *testing.T) {
	lines := make([]string, 20)
	assert.Equal(t, metadataLines, headerLine(lines))

	lines[3] = "//EstacaoCodigo;Data"
	assert.Equal(t, 3, headerLine(lines))
}

func TestConsolidateNormalizesAndDeduplicates(t *testing.T) {
	dir := t.TempDir()
	writeLatin1(t, filepath.Join(dir, "111_Cotas.csv"), exportText(
		exportRow("111", "01/01/2020", "", "123,5"),
		exportRow("111", "01/02/2020", "7", "130"),
		exportRow("111", "not a date", "", "1"),
	))
	writeLatin1(t, filepath.Join(dir, "222_Cotas.csv"), exportText(
		exportRow("222", "01/01/2021", "", "10"),
		// duplicate of the first 111 row, must be dropped
		exportRow("111", "01/01/2020", "", "999"),
	))

	files, err := FindExports(dir)
	require.NoError(t, err)

	rep, err := newTestConsolidator().Consolidate(context.Background(), files, dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.FilesProcessed)
	assert.Equal(t, 0, rep.FilesErrored)
	assert.Equal(t, 4, rep.RowsConsolidated)
	assert.Equal(t, 3, rep.RowsFinal)
	assert.Equal(t, 1, rep.DuplicatesRemoved)
	assert.Equal(t, 1, rep.RowsDropped)
	assert.Equal(t, 2, rep.UniqueStations)
	assert.Equal(t, "2020-01", rep.PeriodStart)
	assert.Equal(t, "2021-01", rep.PeriodEnd)
	assert.Equal(t, map[string]int{"MEDIA": 2, "07:00": 1}, rep.HourLabels)
	assert.Equal(t, filepath.Join(dir, "estacao_hidroweb_novosregistros_2024-06-01.csv"), rep.OutputPath)

	recs := readOutput(t, rep.OutputPath)
	require.Len(t, recs, 4)
	assert.Equal(t, models.CotaColumns, recs[0])
	for _, r := range recs {
		assert.Len(t, r, models.CotaFieldCount)
	}
	assert.Equal(t, []string{"111", "2020-01", "MEDIA", "1", "2", "123.5"}, recs[1][:6])
	assert.Equal(t, "07:00", recs[2][2])
	assert.Equal(t, "222", recs[3][0])
}

func TestConsolidateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeLatin1(t, filepath.Join(dir, "111_Cotas.csv"), exportText(
		exportRow("111", "01/01/2020", "", "1"),
		exportRow("111", "01/01/2020", "", "1"),
		exportRow("111", "01/02/2020", "", "2"),
	))
	files, err := FindExports(dir)
	require.NoError(t, err)

	c := newTestConsolidator()
	first, err := c.Consolidate(context.Background(), files, dir, nil)
	require.NoError(t, err)
	firstContent, err := os.ReadFile(first.OutputPath)
	require.NoError(t, err)

	second, err := c.Consolidate(context.Background(), files, dir, nil)
	require.NoError(t, err)
	secondContent, err := os.ReadFile(second.OutputPath)
	require.NoError(t, err)

	assert.Equal(t, first.RowsFinal, second.RowsFinal)
	assert.Equal(t, string(firstContent), string(secondContent))
	assert.NoFileExists(t, first.OutputPath+".partial")
}

func TestConsolidateCountsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeLatin1(t, filepath.Join(dir, "111_Cotas.csv"), exportText(exportRow("111", "01/01/2020", "", "1")))
	// header without the status columns
	require.NoError(t, os.WriteFile(filepath.Join(dir, "222_Cotas.csv"),
		[]byte("EstacaoCodigo;Data;Hora\n222;01/01/2020;\n"), 0644))
	// header only
	require.NoError(t, os.WriteFile(filepath.Join(dir, "333_Cotas.csv"),
		[]byte(strings.Join(models.SourceColumns, ";")+"\n"), 0644))

	files, err := FindExports(dir)
	require.NoError(t, err)

	rep, err := newTestConsolidator().Consolidate(context.Background(), files, dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.FilesFound)
	assert.Equal(t, 1, rep.FilesProcessed)
	assert.Equal(t, 2, rep.FilesErrored)
	assert.Equal(t, 1, rep.RowsFinal)
}

func TestConsolidateWithNothingUsable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "1_Cotas.csv"), []byte(""), 0644))

	files, err := FindExports(dir)
	require.NoError(t, err)
	_, err = newTestConsolidator().Consolidate(context.Background(), files, dir, nil)
	assert.ErrorIs(t, err, ErrNoRecords)

	latest, err := storage.LatestConsolidated(dir)
	require.NoError(t, err)
	assert.Empty(t, latest)
}

func TestExtractAndConsolidate(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "Estacao_111_CSV_2024-01-01T00.zip"), map[string]string{
		"111_Cotas.csv": exportText(exportRow("111", "01/01/2020", "", "1")),
	})
	writeZip(t, filepath.Join(dir, "Estacao_222_CSV_2024-01-01T00.zip"), map[string]string{
		"222_Cotas.csv": exportText(exportRow("222", "01/01/2020", "", "1")),
	})

	var last int
	c := newTestConsolidator()
	rep, err := c.ExtractAndConsolidate(context.Background(), NewExtractor(utils.NewQuietLogger()), dir,
		func(_ string, cur, _ int) { last = cur })
	require.NoError(t, err)

	assert.Equal(t, 2, rep.ArchivesFound)
	assert.Equal(t, 2, rep.ArchivesExtracted)
	assert.Equal(t, 2, rep.RowsFinal)
	assert.Equal(t, 100, last)

	info := VerifyConsolidated(rep.OutputPath)
	assert.True(t, info.Valid, info.Problem)
	assert.Equal(t, 2, info.Rows)
	assert.Equal(t, 2, info.Stations)
	assert.Equal(t, "2020-01", info.PeriodStart)

	status := Inspect(dir)
	assert.True(t, status.ReadyToExtract)
	assert.True(t, status.ReadyToLoad)
	assert.Equal(t, 2, status.TempCSVFiles)
	assert.Equal(t, rep.OutputPath, status.Consolidated)
}

func TestVerifyConsolidatedProblems(t *testing.T) {
	dir := t.TempDir()

	info := VerifyConsolidated(filepath.Join(dir, "missing.csv"))
	assert.False(t, info.Valid)
	assert.Equal(t, "file not found", info.Problem)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	assert.Equal(t, "file is empty", VerifyConsolidated(empty).Problem)

	partial := filepath.Join(dir, "partial.csv")
	require.NoError(t, os.WriteFile(partial, []byte("codigo_estacao,data\n1,2020-01\n"), 0644))
	assert.Contains(t, VerifyConsolidated(partial).Problem, "hora")
}
