// Package watcher reports changes inside a single directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// EventKind classifies a directory change
type EventKind int

const (
	Created EventKind = iota + 1
	Modified
	Deleted
	// Overflow means the watch queue dropped events and the directory must be re-listed
	Overflow
)

func (k EventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Event is a change to one file. Path is empty for Overflow.
type Event struct {
	Kind EventKind
	Path string
}

// DirectoryWatcher delivers the change stream of one directory
type DirectoryWatcher interface {
	// Observe blocks, calling handler for each event, until ctx is done or Stop is called.
	// ready is called once the subscription is in place; changes made after it
	// returns are guaranteed to be reported.
	Observe(ctx context.Context, dir string, ready func(), handler func(Event)) error
	Stop()
}

// FSWatcher is a DirectoryWatcher backed by fsnotify
type FSWatcher struct {
	bufferSize uint
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// New creates an fsnotify watcher. bufferSize sizes the event channel between
// the OS backend and the handler loop; 0 means unbuffered.
func New(bufferSize uint) *FSWatcher {
	return &FSWatcher{
		bufferSize: bufferSize,
		stopCh:     make(chan struct{}),
	}
}

// Observe watches dir until ctx is cancelled or Stop is called.
// ready is called after the directory watch is registered.
// It returns nil after Stop and ctx.Err() after cancellation.
func (w *FSWatcher) Observe(ctx context.Context, dir string, ready func(), handler func(Event)) error {
	fsw, err := fsnotify.NewBufferedWatcher(w.bufferSize)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	log.Debug().Str("dir", dir).Msg("Watching directory")
	if ready != nil {
		ready()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if kind, ok := classify(ev); ok {
				handler(Event{Kind: kind, Path: ev.Name})
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Warn().Str("dir", dir).Msg("Watch queue overflowed, requesting full reload")
				handler(Event{Kind: Overflow})
				continue
			}
			log.Warn().Err(err).Str("dir", dir).Msg("Watcher error")
		}
	}
}

// Stop ends Observe. It is safe to call more than once.
func (w *FSWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// classify maps an fsnotify event to an EventKind.
// A rename is reported for the old name, so it counts as a deletion.
func classify(ev fsnotify.Event) (EventKind, bool) {
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return Deleted, true
	case ev.Has(fsnotify.Create):
		return Created, true
	case ev.Has(fsnotify.Write):
		return Modified, true
	default:
		return 0, false
	}
}
