package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStations(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		codes    []string
		rejected []string
	}{
		{"empty", "", nil, nil},
		{"whitespace", "12345678 87654321\n11111111", []string{"12345678", "87654321", "11111111"}, nil},
		{"commas and semicolons", "1,2;3 , 4", []string{"1", "2", "3", "4"}, nil},
		{"comments", "# header\n12345678 # main gauge\n#87654321", []string{"12345678"}, nil},
		{"invalid tokens", "12345678 abc 12a4", []string{"12345678"}, []string{"abc", "12a4"}},
		{"windows newlines", "1\r\n2\r\n", []string{"1", "2"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, rejected := ParseStations(tt.input)
			assert.Equal(t, tt.codes, codes)
			assert.Equal(t, tt.rejected, rejected)
		})
	}
}
