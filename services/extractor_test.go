package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hidroweb-scraper/utils"
)

func TestExtractAllPullsOnlyCotasMembers(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "Estacao_111_CSV_2024-01-01T00.zip"), map[string]string{
		"111_Cotas.csv":  "a",
		"111_Vazoes.csv": "b",
	})
	writeZip(t, filepath.Join(dir, "Estacao_222_CSV_2024-01-01T00.zip"), map[string]string{
		"nested/222_Cotas.csv": "c",
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Estacao_333_CSV_2024-01-01T00.zip"), []byte("not a zip"), 0644))

	var stages []int
	ex := NewExtractor(utils.NewQuietLogger())
	res, err := ex.ExtractAll(context.Background(), dir, dir, func(_ string, cur, _ int) { stages = append(stages, cur) })
	require.NoError(t, err)

	assert.Equal(t, 3, res.ArchivesFound)
	assert.Len(t, res.Extracted, 2)
	assert.Equal(t, []string{"Estacao_333_CSV_2024-01-01T00.zip"}, res.Errored)
	assert.FileExists(t, filepath.Join(dir, "111_Cotas.csv"))
	assert.FileExists(t, filepath.Join(dir, "222_Cotas.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "111_Vazoes.csv"))
	assert.Equal(t, 35, stages[len(stages)-1])

	n, err := ex.CleanupTemporary(dir, true)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Empty(t, listDir(t, dir))
}
