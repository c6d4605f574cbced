package importer

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// DecodeText converts raw file bytes into a UTF-8 string. Strict UTF-8 is
// tried first, then ISO 8859-1, which assigns every byte value and so also
// absorbs the Windows-1252 and Latin-1 exports seen in the wild. Should the
// decoder still fail, the bytes are decoded as UTF-8 with replacement runes;
// a garbled cell is preferable to failing the whole batch.
func DecodeText(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if decoded, ok := tryDecode(raw, charmap.ISO8859_1.NewDecoder()); ok {
		return decoded
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}

func tryDecode(raw []byte, dec *encoding.Decoder) (string, bool) {
	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}
