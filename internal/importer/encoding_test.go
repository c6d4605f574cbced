package importer

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDecodeTextKeepsValidUTF8(t *testing.T) {
	raw := []byte("taxpayer_id,name,year\n76123456-7,Inversiones Ñuñoa,2024\n")
	assert.Equal(t, string(raw), DecodeText(raw))
}

func TestDecodeTextFallsBackToLatin1(t *testing.T) {
	// "Año" with the ñ encoded as Latin-1 0xF1, invalid as UTF-8.
	raw := []byte{'A', 0xF1, 'o'}
	assert.False(t, utf8.Valid(raw))

	decoded := DecodeText(raw)
	assert.Equal(t, "Año", decoded)
}

func TestDecodeTextNeverFails(t *testing.T) {
	raw := []byte{0xFF, 0xFE, 0xFD}
	decoded := DecodeText(raw)
	assert.True(t, utf8.ValidString(decoded))
	assert.NotEmpty(t, decoded)
}
