package domain

import "time"

// FileReadingProgress represents the current reading progress of an active chat log
type FileReadingProgress struct {
	Timestamp     time.Time // When the file was last read
	FilePath      string    // Full path to the file
	FileName      string    // Just filename, the registry key
	CharacterID   string
	ChannelName   string
	FileSizeBytes int64     // File size seen by the last read
	OffsetBytes   int64     // Current reading position
	MessagesRead  uint64    // Number of messages parsed so far
	LastTimestamp time.Time // Timestamp of last parsed message
}
