package offset

import (
	"context"
)

// OffsetStore stores and retrieves file read offsets
// Implementations: in-memory (default), BoltDB (opt-in persistence across restarts)
type OffsetStore interface {
	// Get retrieves the offset for a given file
	// Returns 0 if no offset is stored
	Get(ctx context.Context, filePath string) (int64, error)

	// Set stores the offset for a given file
	Set(ctx context.Context, filePath string, offset int64) error

	// Delete removes the offset for a given file
	Delete(ctx context.Context, filePath string) error

	// List returns all stored offsets
	List(ctx context.Context) (map[string]int64, error)

	// Close closes the offset store
	Close() error
}
