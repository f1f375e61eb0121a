// Package registry holds the set of known candidate chat log files.
package registry

import (
	"sort"
	"sync"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
)

// Registry is the set of known log files keyed by filename.
// All reads and writes are serialized by one mutex; Snapshot hands out a copy.
type Registry struct {
	mu    sync.Mutex
	files map[string]domain.LogFileDescriptor
}

// New creates an empty registry
func New() *Registry {
	return &Registry{files: make(map[string]domain.LogFileDescriptor)}
}

// Add inserts a descriptor, replacing any entry with the same filename
func (r *Registry) Add(d domain.LogFileDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[d.Filename] = d
}

// Remove drops the entry for filename. Unknown names are ignored.
func (r *Registry) Remove(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, filename)
}

// ReplaceAll atomically swaps the whole set, used for full reloads
func (r *Registry) ReplaceAll(descriptors []domain.LogFileDescriptor) {
	files := make(map[string]domain.LogFileDescriptor, len(descriptors))
	for _, d := range descriptors {
		files[d.Filename] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = files
}

// Snapshot returns a point-in-time copy ordered by filename
func (r *Registry) Snapshot() []domain.LogFileDescriptor {
	r.mu.Lock()
	result := make([]domain.LogFileDescriptor, 0, len(r.files))
	for _, d := range r.files {
		result = append(result, d)
	}
	r.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Filename < result[j].Filename
	})
	return result
}

// Len returns the number of known files
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}
