// Package dedup suppresses chat messages that were already delivered a moment ago.
//
// The same message often shows up in several log files at once (two
// characters in the same channel, or a channel logged twice). Messages with
// identical author and text inside a short window are treated as one.
package dedup

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
)

// Deduplicator holds a bounded, time-ordered window of recently admitted messages
type Deduplicator struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	capacity int
	recent   []domain.ChatMessage
}

// New creates a deduplicator. Messages younger than window are compared;
// the stored window is pruned whenever it reaches capacity.
func New(clk clock.Clock, window time.Duration, capacity int) *Deduplicator {
	if clk == nil {
		clk = clock.New()
	}
	if capacity < 2 {
		capacity = 2
	}
	return &Deduplicator{
		clock:    clk,
		window:   window,
		capacity: capacity,
		recent:   make([]domain.ChatMessage, 0, capacity),
	}
}

// Admit records msg and reports whether it should be delivered.
// It returns false when an identical (author, text) message was admitted within the window.
func (d *Deduplicator) Admit(msg domain.ChatMessage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.admitLocked(msg)
}

// AdmitFunc admits msg and, when it is not a duplicate, calls deliver while
// still holding the admission lock, so deliveries keep admission order.
func (d *Deduplicator) AdmitFunc(msg domain.ChatMessage, deliver func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.admitLocked(msg) {
		return false
	}
	deliver()
	return true
}

func (d *Deduplicator) admitLocked(msg domain.ChatMessage) bool {
	now := d.clock.Now()

	veryRecent := d.trailingRecent(now)
	duplicate := false
	for _, m := range d.recent[veryRecent:] {
		if m.Author == msg.Author && m.Text == msg.Text {
			duplicate = true
			break
		}
	}

	d.recent = append(d.recent, msg)
	if len(d.recent) >= d.capacity {
		d.prune(now)
	}

	return !duplicate
}

// trailingRecent returns the index where the trailing run of messages younger
// than the window starts
func (d *Deduplicator) trailingRecent(now time.Time) int {
	i := len(d.recent)
	for i > 0 && now.Sub(d.recent[i-1].Timestamp) < d.window {
		i--
	}
	return i
}

// prune keeps only the trailing run of recent messages, at most capacity-1 of
// them so the next append cannot grow the window past capacity
func (d *Deduplicator) prune(now time.Time) {
	start := d.trailingRecent(now)
	if n := len(d.recent) - start; n > d.capacity-1 {
		start = len(d.recent) - (d.capacity - 1)
	}
	kept := make([]domain.ChatMessage, len(d.recent)-start, d.capacity)
	copy(kept, d.recent[start:])
	d.recent = kept
}

// Len returns the number of stored messages
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.recent)
}
