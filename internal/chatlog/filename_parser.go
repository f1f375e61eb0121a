package chatlog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
)

// Chat log filename pattern: <Channel>_<yyyymmdd>_<hhmmss>[_<CharacterID>].txt
// Examples:
//   - Local_20240110_120000_2112345678.txt
//   - Corp_Chat_20240110_120000_2112345678.txt (channel names may contain underscores)
//   - Fleet_20240110_120000.txt (older clients omit the character ID)
var filenameRegex = regexp.MustCompile(`^(.+)_(\d{8})_(\d{6})(?:_(\d+))?\.txt$`)

const filenameTimeLayout = "20060102150405"

// FilenameInfo holds the fields encoded in a chat log filename
type FilenameInfo struct {
	ChannelName string
	Started     time.Time
	CharacterID string // empty when the client did not write it
}

// ParseFilename extracts channel, session start and character ID from a chat log filename
//
// Returns:
//   - FilenameInfo: parsed fields, Started in UTC
//   - error: ErrNotChatLog if the name does not follow the pattern or encodes an invalid date
func ParseFilename(filename string) (FilenameInfo, error) {
	baseName := filepath.Base(filename)

	matches := filenameRegex.FindStringSubmatch(baseName)
	if matches == nil {
		return FilenameInfo{}, fmt.Errorf("%w: %s", ErrNotChatLog, baseName)
	}

	started, err := time.ParseInLocation(filenameTimeLayout, matches[2]+matches[3], time.UTC)
	if err != nil {
		return FilenameInfo{}, fmt.Errorf("%w: invalid session start in %s", ErrNotChatLog, baseName)
	}

	return FilenameInfo{
		ChannelName: matches[1],
		Started:     started,
		CharacterID: matches[4],
	}, nil
}

// MatchFilename classifies a path as a chat log file.
// The only I/O is a stat for the last-modified time; a file that cannot be
// stat'ed is not matched.
func MatchFilename(path string) (*domain.LogFileDescriptor, bool) {
	info, err := ParseFilename(path)
	if err != nil {
		return nil, false
	}

	stat, err := os.Stat(path)
	if err != nil || stat.IsDir() {
		return nil, false
	}

	return &domain.LogFileDescriptor{
		Path:         path,
		Filename:     filepath.Base(path),
		CharacterID:  info.CharacterID,
		ChannelName:  info.ChannelName,
		Started:      info.Started,
		LastModified: stat.ModTime(),
	}, true
}
