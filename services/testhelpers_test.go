package services

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"hidroweb-scraper/models"
)

// exportRow builds one source row with the given key fields and a first-day reading.
func exportRow(station, date, hour, cota01 string) string {
	fields := make([]string, models.CotaFieldCount)
	fields[0], fields[1], fields[2] = station, date, hour
	fields[3], fields[4] = "1", "2"
	fields[5] = cota01
	fields[39] = "1"
	return strings.Join(fields, ";")
}

// exportText renders a station export with the portal's metadata preamble.
func exportText(rows ...string) string {
	var b strings.Builder
	b.WriteString("//  ANA - Agência Nacional de Águas\n")
	b.WriteString("//  Sistema de Informações Hidrológicas - Versão Web\n")
	b.WriteString("//\n//  Cotas em centímetros\n//\n")
	b.WriteString(strings.Join(models.SourceColumns, ";") + "\n")
	for _, r := range rows {
		b.WriteString(r + "\n")
	}
	return b.String()
}

func writeLatin1(t *testing.T, path, text string) {
	t.Helper()
	raw, err := charmap.ISO8859_1.NewEncoder().String(text)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))
}

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		out = append(out, filepath.Base(e.Name()))
	}
	return out
}
