package offset

import (
	"context"
	"sync"
)

// MemoryStore keeps offsets for the lifetime of the process
type MemoryStore struct {
	mu      sync.RWMutex
	offsets map[string]int64
}

// NewMemoryStore creates an empty in-memory offset store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{offsets: make(map[string]int64)}
}

func (s *MemoryStore) Get(ctx context.Context, filePath string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets[filePath], nil
}

func (s *MemoryStore) Set(ctx context.Context, filePath string, offset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[filePath] = offset
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offsets, filePath)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]int64, len(s.offsets))
	for k, v := range s.offsets {
		result[k] = v
	}
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
