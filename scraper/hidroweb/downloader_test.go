package hidroweb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hidroweb-scraper/config"
	"hidroweb-scraper/models"
	"hidroweb-scraper/utils"
)

func cotasArchive(code string) []byte {
	return zipBytes(map[string]string{
		code + "_Cotas.csv":  "EstacaoCodigo;Data\n",
		code + "_Vazoes.csv": "EstacaoCodigo;Data\n",
	})
}

func newTestDownloader(t *testing.T, page Page) (*Downloader, string, string) {
	t.Helper()
	root := t.TempDir()
	scratch := filepath.Join(root, ".tmp")
	dest := filepath.Join(root, "principal")
	require.NoError(t, os.MkdirAll(scratch, 0755))

	d := NewDownloader(page, scratch, dest, config.DefaultTimeouts(), utils.NewQuietLogger())
	d.sleep = noSleep
	return d, scratch, dest
}

func TestDownloader_Downloads(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("12345678"))
	d, scratch, dest := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)

	require.Equal(t, models.OutcomeDownloaded, out.Kind, out.Reason)
	assert.False(t, out.Unchanged)
	assert.Equal(t, filepath.Join(dest, page.suggested), out.Path)
	assert.FileExists(t, out.Path)
	assert.NoFileExists(t, filepath.Join(scratch, page.suggested))
	assert.Equal(t, []string{"12345678"}, page.fills)
	assert.Equal(t, 1, page.enters)
}

func TestDownloader_UnchangedWhenSameSize(t *testing.T) {
	archive := cotasArchive("12345678")
	page := newFakePage("12345678", archive)
	d, _, dest := newTestDownloader(t, page)

	require.NoError(t, os.MkdirAll(dest, 0755))
	existing := filepath.Join(dest, "Estacao_12345678_CSV_2023-01-01T00-00-00.zip")
	require.NoError(t, os.WriteFile(existing, archive, 0644))

	out := d.Process(context.Background(), "12345678", 1)

	require.Equal(t, models.OutcomeDownloaded, out.Kind, out.Reason)
	assert.True(t, out.Unchanged)
	assert.Equal(t, existing, out.Path)
	assert.NoFileExists(t, filepath.Join(dest, page.suggested))
}

func TestDownloader_NoResultsTable(t *testing.T) {
	page := newFakePage("99999999", nil)
	page.visible["results table"] = false
	d, _, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "99999999", 1)
	assert.Equal(t, models.OutcomeNotFound, out.Kind)
}

func TestDownloader_DisabledButtonIsNotFound(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("12345678"))
	page.disabled["csv button"] = true
	d, _, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)
	assert.Equal(t, models.OutcomeNotFound, out.Kind)
}

func TestDownloader_FallsBackToStructuralButton(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("12345678"))
	page.visible["csv button"] = false
	page.visible["csv button (structural)"] = true
	d, _, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)
	assert.Equal(t, models.OutcomeDownloaded, out.Kind, out.Reason)
}

func TestDownloader_MismatchNeverResolves(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("12345678"))
	page.shown = []string{"87654321"}
	d, _, dest := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)

	assert.Equal(t, models.OutcomeNotFound, out.Kind)
	assert.NoDirExists(t, dest)
	assert.Len(t, page.fills, 3)
}

func TestDownloader_MismatchCorrectedOnResubmit(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("12345678"))
	page.shown = []string{"87654321", "12345678"}
	d, _, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)

	assert.Equal(t, models.OutcomeDownloaded, out.Kind, out.Reason)
	assert.Equal(t, 2, page.enters)
}

func TestDownloader_EmptyCellIsNotFound(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("12345678"))
	page.shown = []string{""}
	d, _, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)
	assert.Equal(t, models.OutcomeNotFound, out.Kind)
}

func TestDownloader_SuggestedNameForOtherStation(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("87654321"))
	page.suggested = "Estacao_87654321_CSV_2024-03-01T10-00-00.zip"
	d, scratch, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)

	assert.Equal(t, models.OutcomeTransient, out.Kind)
	assert.True(t, page.cancelled)
	assert.NoFileExists(t, filepath.Join(scratch, page.suggested))
}

func TestDownloader_ArchiveWithoutCotas(t *testing.T) {
	page := newFakePage("12345678", zipBytes(map[string]string{"12345678_Vazoes.csv": "x"}))
	d, scratch, dest := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)

	assert.Equal(t, models.OutcomeNoData, out.Kind)
	assert.NoFileExists(t, filepath.Join(scratch, page.suggested))
	assert.NoDirExists(t, dest)
}

func TestDownloader_CorruptArchiveIsTransient(t *testing.T) {
	page := newFakePage("12345678", []byte("<html>error</html>"))
	d, scratch, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)

	assert.Equal(t, models.OutcomeTransient, out.Kind)
	assert.NoFileExists(t, filepath.Join(scratch, page.suggested))
}

func TestDownloader_DownloadNeverStarts(t *testing.T) {
	page := newFakePage("12345678", nil)
	page.startErr = ErrDownloadTimeout
	d, _, _ := newTestDownloader(t, page)

	out := d.Process(context.Background(), "12345678", 1)

	assert.Equal(t, models.OutcomeTransient, out.Kind)
	assert.Contains(t, out.Reason, "did not start")
}

func TestDownloader_ClearsStaleScratch(t *testing.T) {
	page := newFakePage("12345678", cotasArchive("12345678"))
	d, scratch, _ := newTestDownloader(t, page)

	stale := filepath.Join(scratch, "Estacao_11111111_CSV_2024-01-01T00-00-00.zip")
	require.NoError(t, os.WriteFile(stale, []byte("PK"), 0644))

	out := d.Process(context.Background(), "12345678", 1)

	assert.Equal(t, models.OutcomeDownloaded, out.Kind, out.Reason)
	assert.NoFileExists(t, stale)
}

func TestLocatorChain_First(t *testing.T) {
	chain := LocatorChain{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	var probed []string
	loc, ok := chain.First(context.Background(), func(_ context.Context, l Locator) bool {
		probed = append(probed, l.Name)
		return l.Name == "b"
	})

	assert.True(t, ok)
	assert.Equal(t, "b", loc.Name)
	assert.Equal(t, []string{"a", "b"}, probed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = chain.First(ctx, func(context.Context, Locator) bool { return true })
	assert.False(t, ok)
}
