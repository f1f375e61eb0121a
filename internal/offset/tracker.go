package offset

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Tracker maps file paths to the byte offset of their already read portion.
// Offsets only move forward; the single exception is Resolve, which restarts
// a file from 0 when it shrank below its stored offset.
type Tracker struct {
	mu      sync.Mutex
	store   OffsetStore
	offsets map[string]int64 // write-through cache in front of store
}

// NewTracker creates a tracker on top of the given store.
// A nil store keeps offsets in memory.
func NewTracker(store OffsetStore) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:   store,
		offsets: make(map[string]int64),
	}
}

// Get returns the stored offset for path, 0 when unknown
func (t *Tracker) Get(ctx context.Context, path string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.getLocked(ctx, path)
}

func (t *Tracker) getLocked(ctx context.Context, path string) int64 {
	if off, ok := t.offsets[path]; ok {
		return off
	}

	off, err := t.store.Get(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to load offset, starting from beginning")
		off = 0
	}
	t.offsets[path] = off
	return off
}

// Advance records forward progress for path. A backwards move is logged and ignored.
func (t *Tracker) Advance(ctx context.Context, path string, newOffset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.getLocked(ctx, path)
	if newOffset < current {
		log.Warn().
			Str("file", path).
			Int64("current_offset", current).
			Int64("new_offset", newOffset).
			Msg("Offset regression ignored")
		return
	}
	if newOffset == current {
		return
	}

	t.offsets[path] = newOffset
	if err := t.store.Set(ctx, path, newOffset); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to save offset")
	}
}

// Resolve returns the offset to read path from, given its current size.
// A file smaller than its stored offset was truncated or replaced and is re-read from 0.
func (t *Tracker) Resolve(ctx context.Context, path string, size int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.getLocked(ctx, path)
	if size >= current {
		return current
	}

	log.Info().
		Str("file", path).
		Int64("saved_offset", current).
		Int64("file_size", size).
		Msg("File shrank below saved offset, starting from beginning")

	t.offsets[path] = 0
	if err := t.store.Set(ctx, path, 0); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to reset offset")
	}
	return 0
}

// Forget drops the offset for path
func (t *Tracker) Forget(ctx context.Context, path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.offsets, path)
	if err := t.store.Delete(ctx, path); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to delete offset")
	}
}

// Close closes the underlying store
func (t *Tracker) Close() error {
	return t.store.Close()
}
