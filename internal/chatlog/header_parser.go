package chatlog

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
)

// maxHeaderBytes bounds how much of a file is read to find the header block
const maxHeaderBytes = 4096

const sessionTimeLayout = "2006.01.02 15:04:05"

// "Label:   value". The value may itself contain colons ("12:00:00").
var headerFieldRegex = regexp.MustCompile(`^\s*(.+?):\s+(.*?)\s*$`)

// Header labels for the first field (Channel ID) per client language.
// Fields are always read by position, the label only tells the language.
var channelIDLabels = map[string]string{
	"Channel ID":  "en",
	"Kanal-ID":    "de",
	"ID du canal": "fr",
	"ID канала":   "ru",
	"チャンネルID":     "ja",
	"频道ID":        "zh",
	"채널 ID":       "ko",
	"ID del canal": "es",
}

// ParseHeader reads the leading header block of a chat log file.
//
// Header layout:
//
//	---------------------------------------------------------------
//	  Channel ID:      local
//	  Channel Name:    Local
//	  Listener:        Bob Smith
//	  Session started: 2024.01.10 12:00:00
//	---------------------------------------------------------------
func (p *Parser) ParseHeader(characterID, path string) (*domain.LogFileMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	raw := make([]byte, maxHeaderBytes)
	n, err := io.ReadFull(file, raw)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	text, err := decodeUTF16(raw[:n])
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	return p.parseHeaderText(characterID, text)
}

func (p *Parser) parseHeaderText(characterID, text string) (*domain.LogFileMetadata, error) {
	var labels, values []string
	separators := 0

	for _, line := range splitLines(text) {
		trimmed := strings.TrimSpace(line)
		if isSeparator(trimmed) {
			separators++
			if separators == 2 {
				break
			}
			continue
		}
		if separators != 1 || trimmed == "" {
			continue
		}
		m := headerFieldRegex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		labels = append(labels, m[1])
		values = append(values, m[2])
	}

	if separators < 2 {
		return nil, fmt.Errorf("%w: header block not terminated", ErrInvalidHeader)
	}
	if len(values) < 4 {
		return nil, fmt.Errorf("%w: expected 4 fields, got %d", ErrInvalidHeader, len(values))
	}
	if values[1] == "" {
		return nil, fmt.Errorf("%w: empty channel name", ErrInvalidHeader)
	}

	started, err := time.ParseInLocation(sessionTimeLayout, values[3], p.location)
	if err != nil {
		return nil, fmt.Errorf("%w: session start %q: %v", ErrInvalidHeader, values[3], err)
	}

	return &domain.LogFileMetadata{
		CharacterID:    characterID,
		ChannelID:      values[0],
		ChannelName:    values[1],
		Listener:       values[2],
		SessionStarted: started,
		Language:       channelIDLabels[labels[0]],
		Location:       p.location,
	}, nil
}

func isSeparator(line string) bool {
	return len(line) >= 10 && strings.Trim(line, "-") == ""
}
