package domain

import "time"

// LogFileDescriptor identifies one physical chat log file on disk.
// Descriptors are produced by the filename matcher and never mutated.
type LogFileDescriptor struct {
	Path         string    // Full path to the file
	Filename     string    // Base name, used as the registry key
	CharacterID  string    // Owning identity (listener character)
	ChannelName  string    // Channel name as encoded in the filename
	Started      time.Time // Session start encoded in the filename (UTC)
	LastModified time.Time
}

// GroupKey returns the (identity, channel) pair the file belongs to
func (d LogFileDescriptor) GroupKey() GroupKey {
	return GroupKey{CharacterID: d.CharacterID, ChannelName: d.ChannelName}
}

// GroupKey is the (identity, channel) pair for which at most one file is active
type GroupKey struct {
	CharacterID string
	ChannelName string
}

// LogFileMetadata is the parsed header of a chat log file
type LogFileMetadata struct {
	CharacterID    string
	ChannelID      string
	ChannelName    string
	Listener       string
	SessionStarted time.Time
	Language       string         // Header label language ("en", "de", "fr", "ru", ...)
	Location       *time.Location // Time zone of message timestamps
}

// ChatMessage is one parsed line of a chat log
type ChatMessage struct {
	Author    string
	Text      string
	Timestamp time.Time
}

// ChannelChatMessage is a message paired with the metadata of the file it was read from.
// This is the unit delivered to consumers.
type ChannelChatMessage struct {
	Message  ChatMessage
	Metadata LogFileMetadata
}
