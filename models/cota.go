package models

import (
	"errors"
	"fmt"
)

// CotaFieldCount is the number of positional fields of a cota record and of
// the destination table.
const CotaFieldCount = 73

// HourDailyMean is the hour label used for rows that carry a daily mean
// rather than a reading at a specific hour.
const HourDailyMean = "MEDIA"

var ErrFieldCount = errors.New("cota record field count mismatch")

// CotaColumns is the canonical, order-significant column set shared by the
// consolidated CSV and the destination table.
var CotaColumns = buildColumns("codigo_estacao", "data", "hora", "tipo_medicao_cota", "nivel_consistencia",
	"cota", "cota_maxima", "cota_minima", "cota_media", "_status")

// SourceColumns holds the per-station export headers, index-aligned with CotaColumns.
var SourceColumns = buildColumns("EstacaoCodigo", "Data", "Hora", "TipoMedicaoCotas", "NivelConsistencia",
	"Cota", "Maxima", "Minima", "Media", "Status")

// PrimaryKeyColumns identify a persisted row.
var PrimaryKeyColumns = []string{"codigo_estacao", "data", "hora", "tipo_medicao_cota", "nivel_consistencia"}

// RequiredColumns must be present in a consolidated file before it can be loaded.
var RequiredColumns = []string{"codigo_estacao", "data", "hora"}

func buildColumns(station, date, hour, kind, level, daily, max, min, mean, status string) []string {
	cols := []string{station, date, hour, kind, level}
	values := make([]string, 0, 34)
	for day := 1; day <= 31; day++ {
		values = append(values, fmt.Sprintf("%s%02d", daily, day))
	}
	values = append(values, max, min, mean)
	cols = append(cols, values...)

	for _, v := range values {
		cols = append(cols, v+status)
	}
	return cols
}

// CotaRecord is one normalized row of a station's water-level export.
type CotaRecord struct {
	fields []string
}

// NewCotaRecord wraps fields in canonical order. Any field count other than
// CotaFieldCount is rejected.
func NewCotaRecord(fields []string) (CotaRecord, error) {
	if len(fields) != CotaFieldCount {
		return CotaRecord{}, fmt.Errorf("%w: got %d, want %d", ErrFieldCount, len(fields), CotaFieldCount)
	}
	cp := make([]string, len(fields))
	copy(cp, fields)
	return CotaRecord{fields: cp}, nil
}

func (r CotaRecord) Station() string { return r.fields[0] }
func (r CotaRecord) Date() string    { return r.fields[1] }
func (r CotaRecord) Hour() string    { return r.fields[2] }

// Fields returns a copy of the positional values.
func (r CotaRecord) Fields() []string {
	cp := make([]string, len(r.fields))
	copy(cp, r.fields)
	return cp
}

// Key is the deduplication key used during consolidation.
func (r CotaRecord) Key() string {
	return r.fields[0] + "|" + r.fields[1] + "|" + r.fields[2]
}
