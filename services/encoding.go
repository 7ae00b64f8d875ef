package services

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DefaultEncodings is the order in which export files are decoded.
var DefaultEncodings = []string{"utf-8", "iso-8859-1", "windows-1252"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText converts raw bytes to a string using the named encoding. UTF-8
// is strict: invalid sequences are an error so the next encoding gets a turn.
func decodeText(raw []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "utf-8", "utf8":
		raw = bytes.TrimPrefix(raw, utf8BOM)
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("invalid utf-8")
		}
		return string(raw), nil
	case "iso-8859-1", "latin-1", "latin1":
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
		return string(out), err
	case "windows-1252", "cp1252":
		out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		return string(out), err
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}
