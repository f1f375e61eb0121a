package chatlog

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Chat logs are written as UTF-16LE with a BOM at the start of the file.
// Offsets always point into the raw byte stream, so decoding happens after
// the byte range has been cut on a code unit boundary.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

const bom = "\ufeff"

// decodeUTF16 converts a raw UTF-16LE byte range to a string.
// An odd trailing byte is dropped.
func decodeUTF16(raw []byte) (string, error) {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	decoded, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(decoded), bom), nil
}

// lastLineEnd returns the index just past the last UTF-16LE '\n' code unit in raw,
// or -1 when raw holds no complete line.
func lastLineEnd(raw []byte) int {
	for i := (len(raw) - 2) &^ 1; i >= 0; i -= 2 {
		if raw[i] == '\n' && raw[i+1] == 0 {
			return i + 2
		}
	}
	return -1
}

// splitLines splits decoded text into lines without terminators or BOMs
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		lines[i] = strings.TrimPrefix(line, bom)
	}
	return lines
}
