package extract

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// fallbackDecoders are tried in order when the input is not valid UTF-8.
var fallbackDecoders = []encoding.Encoding{
	charmap.ISO8859_1,
	charmap.Windows1252,
}

// DecodeText converts bytes to a string. Valid UTF-8 is used as is; anything
// else is decoded as Latin-1, then Windows-1252, and finally with invalid
// sequences replaced. It never fails.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	for _, enc := range fallbackDecoders {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err == nil {
			return string(decoded)
		}
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

func extractText(_ context.Context, data []byte) (string, error) {
	return DecodeText(data), nil
}
