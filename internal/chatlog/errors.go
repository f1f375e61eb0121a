package chatlog

import "errors"

var (
	// ErrNotChatLog is returned for filenames that are not chat logs
	ErrNotChatLog = errors.New("not a chat log file")

	// ErrInvalidHeader is returned when the leading header block is missing or malformed
	ErrInvalidHeader = errors.New("invalid chat log header")
)
