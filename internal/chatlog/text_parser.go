package chatlog

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
	"github.com/rs/zerolog/log"
)

// Message line: [ 2024.01.10 12:00:05 ] Author Name > message text
var messageRegex = regexp.MustCompile(`^\[ (\d{4}\.\d{2}\.\d{2} \d{2}:\d{2}:\d{2}) \] (.+?) > (.*)$`)

// Parser decodes chat log files. It implements both the one-shot header parse
// and the incremental body parse.
type Parser struct {
	location *time.Location
}

// NewParser creates a parser for logs whose timestamps are in UTC
func NewParser() *Parser {
	return &Parser{location: time.UTC}
}

// Parse reads the body of a chat log starting at fromOffset and returns the
// complete messages found there together with the offset just past the last
// complete line. A partially written trailing line is left for the next call.
func (p *Parser) Parse(path string, fromOffset int64) ([]domain.ChatMessage, int64, error) {
	if fromOffset < 0 {
		fromOffset = 0
	}
	// Offsets land on UTF-16 code unit boundaries
	fromOffset &^= 1

	file, err := os.Open(path)
	if err != nil {
		return nil, fromOffset, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fromOffset, fmt.Errorf("failed to stat file: %w", err)
	}

	size := stat.Size()
	if size <= fromOffset {
		return nil, fromOffset, nil
	}

	if _, err := file.Seek(fromOffset, io.SeekStart); err != nil {
		return nil, fromOffset, fmt.Errorf("failed to seek to offset: %w", err)
	}

	raw := make([]byte, size-fromOffset)
	if _, err := io.ReadFull(file, raw); err != nil {
		return nil, fromOffset, fmt.Errorf("failed to read file: %w", err)
	}

	end := lastLineEnd(raw)
	if end < 0 {
		return nil, fromOffset, nil
	}

	text, err := decodeUTF16(raw[:end])
	if err != nil {
		return nil, fromOffset, fmt.Errorf("failed to decode file: %w", err)
	}

	messages := p.parseLines(splitLines(text))
	return messages, fromOffset + int64(end), nil
}

func (p *Parser) parseLines(lines []string) []domain.ChatMessage {
	var messages []domain.ChatMessage
	for _, line := range lines {
		msg, ok := p.ParseLine(line)
		if !ok {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// ParseLine parses a single decoded message line.
// Header lines, blank lines and malformed lines are not messages.
func (p *Parser) ParseLine(line string) (domain.ChatMessage, bool) {
	m := messageRegex.FindStringSubmatch(line)
	if m == nil {
		return domain.ChatMessage{}, false
	}

	ts, err := time.ParseInLocation(sessionTimeLayout, m[1], p.location)
	if err != nil {
		log.Debug().
			Err(err).
			Str("line", line[:min(len(line), 100)]).
			Msg("Failed to parse chat message timestamp, skipping")
		return domain.ChatMessage{}, false
	}

	return domain.ChatMessage{
		Author:    m[2],
		Text:      m[3],
		Timestamp: ts,
	}, true
}
