// Package selector picks the single chat log file to tail for every
// (character, channel) pair.
package selector

import (
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
)

// HeaderParser parses the leading header of a chat log file
type HeaderParser interface {
	ParseHeader(characterID, path string) (*domain.LogFileMetadata, error)
}

// Selection is an active file together with its parsed header
type Selection struct {
	Descriptor domain.LogFileDescriptor
	Metadata   domain.LogFileMetadata
}

// ActiveMap maps filename to the selection for that file.
// It holds at most one entry per (character, channel) pair.
type ActiveMap map[string]Selection

// Result is the outcome of one selection pass
type Result struct {
	Active ActiveMap
	// New holds selections whose filename was not active before, ordered by filename.
	// Callers tail each of them from its stored offset (0 when never read).
	New []Selection
}

// Option configures a Selector
type Option func(*Selector)

// WithExistsFunc replaces the on-disk existence check
func WithExistsFunc(fn func(path string) bool) Option {
	return func(s *Selector) {
		s.exists = fn
	}
}

// Selector applies the freshness and recency policy
type Selector struct {
	headers   HeaderParser
	freshness time.Duration
	exists    func(path string) bool
}

// New creates a selector. Files last modified more than freshness before
// the evaluation time are never selected.
func New(headers HeaderParser, freshness time.Duration, opts ...Option) *Selector {
	s := &Selector{
		headers:   headers,
		freshness: freshness,
		exists:    fileExists,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select computes the active file per (character, channel) group.
// Headers already present in previous are reused instead of being parsed again.
func (s *Selector) Select(snapshot []domain.LogFileDescriptor, now time.Time, previous ActiveMap) Result {
	minTime := now.Add(-s.freshness)

	groups := make(map[domain.GroupKey][]domain.LogFileDescriptor)
	fresh := 0
	for _, d := range snapshot {
		if !d.LastModified.After(minTime) {
			continue
		}
		fresh++
		key := d.GroupKey()
		groups[key] = append(groups[key], d)
	}

	if fresh == 0 {
		log.Info().
			Int("known_files", len(snapshot)).
			Dur("freshness_window", s.freshness).
			Msg("No chat log files within the freshness window")
	}

	result := Result{Active: make(ActiveMap, len(groups))}
	for key, files := range groups {
		d, ok := s.latestExisting(files)
		if !ok {
			log.Debug().
				Str("character_id", key.CharacterID).
				Str("channel", key.ChannelName).
				Msg("No existing chat log file for channel")
			continue
		}

		sel, ok := s.metadataFor(d, previous)
		if !ok {
			continue
		}

		result.Active[d.Filename] = sel
		if _, known := previous[d.Filename]; !known {
			result.New = append(result.New, sel)
		}
	}

	sort.Slice(result.New, func(i, j int) bool {
		return result.New[i].Descriptor.Filename < result.New[j].Descriptor.Filename
	})

	return result
}

// latestExisting returns the most recently modified file that is still on disk
func (s *Selector) latestExisting(files []domain.LogFileDescriptor) (domain.LogFileDescriptor, bool) {
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].LastModified.Before(files[j].LastModified)
	})

	for i := len(files) - 1; i >= 0; i-- {
		if s.exists(files[i].Path) {
			return files[i], true
		}
	}
	return domain.LogFileDescriptor{}, false
}

func (s *Selector) metadataFor(d domain.LogFileDescriptor, previous ActiveMap) (Selection, bool) {
	if prev, ok := previous[d.Filename]; ok {
		return Selection{Descriptor: d, Metadata: prev.Metadata}, true
	}

	meta, err := s.headers.ParseHeader(d.CharacterID, d.Path)
	if err != nil || meta == nil {
		log.Error().
			Err(err).
			Str("file", d.Path).
			Msg("Could not parse chat log header")
		return Selection{}, false
	}

	return Selection{Descriptor: d, Metadata: *meta}, true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
