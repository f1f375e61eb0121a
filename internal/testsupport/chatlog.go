package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/unicode"
)

var (
	withBOM    = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	withoutBOM = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
)

// Header renders a chat log header block the way the game client writes it.
func Header(channelID, channelName, listener string, started time.Time) string {
	sep := "        ---------------------------------------------------------------\n"
	return "\n\n" + sep + "\n" +
		fmt.Sprintf("          Channel ID:      %s\n", channelID) +
		fmt.Sprintf("          Channel Name:    %s\n", channelName) +
		fmt.Sprintf("          Listener:        %s\n", listener) +
		fmt.Sprintf("          Session started: %s\n", started.UTC().Format("2006.01.02 15:04:05")) +
		sep + "\n"
}

// Line renders one chat message line including its terminator.
func Line(ts time.Time, author, text string) string {
	return fmt.Sprintf("[ %s ] %s > %s\n", ts.UTC().Format("2006.01.02 15:04:05"), author, text)
}

// Filename builds a chat log filename for a channel, session start and character.
func Filename(channel string, started time.Time, characterID string) string {
	name := fmt.Sprintf("%s_%s", channel, started.UTC().Format("20060102_150405"))
	if characterID != "" {
		name += "_" + characterID
	}
	return name + ".txt"
}

// WriteChatLog creates a UTF-16LE chat log (with BOM) at path and sets its mtime.
func WriteChatLog(t testing.TB, path, content string, modTime time.Time) {
	t.Helper()

	raw, err := withBOM.NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	Touch(t, path, modTime)
}

// AppendChatLog appends UTF-16LE text (no BOM) to an existing chat log.
func AppendChatLog(t testing.TB, path string, lines ...string) {
	t.Helper()

	raw, err := withoutBOM.NewEncoder().String(strings.Join(lines, ""))
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(raw); err != nil {
		t.Fatalf("append %s: %v", path, err)
	}
}

// Touch sets both access and modification time of path.
func Touch(t testing.TB, path string, modTime time.Time) {
	t.Helper()
	if modTime.IsZero() {
		return
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

// EncodedLen returns the UTF-16LE byte length of s without a BOM.
func EncodedLen(t testing.TB, s string) int64 {
	t.Helper()
	raw, err := withoutBOM.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return int64(len(raw))
}
