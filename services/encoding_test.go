package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeText(t *testing.T) {
	latin1 := []byte{'E', 's', 't', 'a', 0xE7, 0xE3, 'o'} // "Estação" in ISO-8859-1

	_, err := decodeText(latin1, "utf-8")
	assert.Error(t, err, "latin-1 bytes must not pass as utf-8")

	got, err := decodeText(latin1, "iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "Estação", got)

	got, err = decodeText(append([]byte{0xEF, 0xBB, 0xBF}, []byte("Estação")...), "utf-8")
	require.NoError(t, err)
	assert.Equal(t, "Estação", got)

	got, err = decodeText([]byte{0x80}, "windows-1252")
	require.NoError(t, err)
	assert.Equal(t, "€", got)

	_, err = decodeText(latin1, "ebcdic")
	assert.Error(t, err)
}
