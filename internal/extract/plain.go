package extract

import (
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/charmap"
)

// extractPlain returns text attachments as UTF-8. Files that are not valid UTF-8 and carry
// no recognizable byte order mark were written on the legacy Windows clients and are read
// as Windows-1252.
func extractPlain(content []byte, _ int) (string, error) {
	if !utf8.Valid(content) {
		enc, _, certain := charset.DetermineEncoding(content, "text/plain")
		if !certain {
			enc = charmap.Windows1252
		}
		decoded, err := enc.NewDecoder().Bytes(content)
		if err != nil {
			return "", err
		}
		content = decoded
	}
	return string(content), nil
}
