package models

import (
	"errors"
	"testing"
)

func TestColumnSets(t *testing.T) {
	if len(CotaColumns) != CotaFieldCount {
		t.Fatalf("canonical columns: got %d, want %d", len(CotaColumns), CotaFieldCount)
	}
	if len(SourceColumns) != CotaFieldCount {
		t.Fatalf("source columns: got %d, want %d", len(SourceColumns), CotaFieldCount)
	}

	checks := []struct {
		idx    int
		canon  string
		source string
	}{
		{0, "codigo_estacao", "EstacaoCodigo"},
		{2, "hora", "Hora"},
		{5, "cota01", "Cota01"},
		{35, "cota31", "Cota31"},
		{36, "cota_maxima", "Maxima"},
		{38, "cota_media", "Media"},
		{39, "cota01_status", "Cota01Status"},
		{72, "cota_media_status", "MediaStatus"},
	}
	for _, c := range checks {
		if CotaColumns[c.idx] != c.canon {
			t.Errorf("CotaColumns[%d] = %q; want %q", c.idx, CotaColumns[c.idx], c.canon)
		}
		if SourceColumns[c.idx] != c.source {
			t.Errorf("SourceColumns[%d] = %q; want %q", c.idx, SourceColumns[c.idx], c.source)
		}
	}
}

func TestNewCotaRecordRejectsWrongFieldCount(t *testing.T) {
	for _, n := range []int{0, 1, 72, 74} {
		_, err := NewCotaRecord(make([]string, n))
		if !errors.Is(err, ErrFieldCount) {
			t.Errorf("NewCotaRecord(%d fields): got %v, want ErrFieldCount", n, err)
		}
	}
}

func TestCotaRecordKey(t *testing.T) {
	fields := make([]string, CotaFieldCount)
	fields[0], fields[1], fields[2] = "12345678", "2020-01", "MEDIA"

	rec, err := NewCotaRecord(fields)
	if err != nil {
		t.Fatalf("NewCotaRecord: %v", err)
	}
	if rec.Key() != "12345678|2020-01|MEDIA" {
		t.Errorf("key: got %q", rec.Key())
	}

	// mutating the input must not leak into the record
	fields[0] = "x"
	if rec.Station() != "12345678" {
		t.Errorf("record aliased its input slice")
	}
}
