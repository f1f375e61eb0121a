// Package observer follows a chat log directory and delivers new messages as
// they are written.
//
// An Observer starts Idle. Observe lists the directory, tails every file
// selected as active and then switches to Watching, where directory events
// drive registry updates, reselection and tailing. Stop, or cancelling the
// context passed to Observe, moves it to Stopped.
package observer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/SteelMorgan/chatlog-watcher/internal/chatlog"
	"github.com/SteelMorgan/chatlog-watcher/internal/config"
	"github.com/SteelMorgan/chatlog-watcher/internal/dedup"
	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
	"github.com/SteelMorgan/chatlog-watcher/internal/observability"
	"github.com/SteelMorgan/chatlog-watcher/internal/offset"
	"github.com/SteelMorgan/chatlog-watcher/internal/registry"
	"github.com/SteelMorgan/chatlog-watcher/internal/retry"
	"github.com/SteelMorgan/chatlog-watcher/internal/selector"
	"github.com/SteelMorgan/chatlog-watcher/internal/tailer"
	"github.com/SteelMorgan/chatlog-watcher/internal/watcher"
)

// ErrAlreadyObserving is returned when Observe is called more than once
var ErrAlreadyObserving = errors.New("observer already started")

// State is the lifecycle state of an Observer
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FilenameMatcher classifies a path as a chat log and describes it
type FilenameMatcher func(path string) (*domain.LogFileDescriptor, bool)

// MessageHandler receives every delivered message, in admission order
type MessageHandler func(domain.ChannelChatMessage)

// Option configures an Observer
type Option func(*Observer)

// WithWatcher replaces the fsnotify directory watcher
func WithWatcher(w watcher.DirectoryWatcher) Option {
	return func(o *Observer) { o.watcher = w }
}

// WithClock replaces the time source used for freshness and deduplication
func WithClock(clk clock.Clock) Option {
	return func(o *Observer) { o.clock = clk }
}

// WithMatcher replaces the chat log filename matcher
func WithMatcher(m FilenameMatcher) Option {
	return func(o *Observer) { o.match = m }
}

// WithHeaderParser replaces the header parser
func WithHeaderParser(p selector.HeaderParser) Option {
	return func(o *Observer) { o.headers = p }
}

// WithLogParser replaces the body parser
func WithLogParser(p tailer.LogParser) Option {
	return func(o *Observer) { o.parser = p }
}

// WithTracker replaces the offset tracker, e.g. one backed by bbolt
func WithTracker(t *offset.Tracker) Option {
	return func(o *Observer) { o.tracker = t }
}

// Observer is the watch reactor for one chat log directory
type Observer struct {
	cfg     *config.Config
	runID   string
	logger  zerolog.Logger
	clock   clock.Clock
	watcher watcher.DirectoryWatcher
	match   FilenameMatcher
	headers selector.HeaderParser
	parser  tailer.LogParser

	registry *registry.Registry
	selector *selector.Selector
	tracker  *offset.Tracker
	tailer   *tailer.Tailer
	dedup    *dedup.Deduplicator
	paths    *pathLocks

	mu     sync.Mutex // guards active; serializes reselection
	active selector.ActiveMap

	progressMu sync.Mutex
	progress   map[string]domain.FileReadingProgress

	deliveries chan domain.ChannelChatMessage

	state    atomic.Int32
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates an Observer from configuration. Collaborators default to the
// fsnotify watcher, the chat log parsers and an in-memory offset tracker.
func New(cfg *config.Config, opts ...Option) (*Observer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	parser := chatlog.NewParser()
	o := &Observer{
		cfg:      cfg,
		runID:    uuid.NewString(),
		clock:    clock.New(),
		watcher:  watcher.New(uint(cfg.WatchBuffer)),
		match:    chatlog.MatchFilename,
		headers:  parser,
		parser:   parser,
		registry: registry.New(),
		paths:    newPathLocks(),
		active:   selector.ActiveMap{},
		progress: make(map[string]domain.FileReadingProgress),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracker == nil {
		o.tracker = offset.NewTracker(nil)
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.ReadRetryAttempts

	o.logger = log.With().Str("run_id", o.runID).Logger()
	o.selector = selector.New(o.headers, cfg.FreshnessWindow)
	o.tailer = tailer.New(o.parser, retryCfg)
	o.dedup = dedup.New(o.clock, cfg.DedupWindow, cfg.DedupCapacity)
	return o, nil
}

// State returns the current lifecycle state
func (o *Observer) State() State {
	return State(o.state.Load())
}

// RunID identifies this observer in logs and traces
func (o *Observer) RunID() string {
	return o.runID
}

// Observe follows dir and calls onMessage for every new, non-duplicate message.
// It blocks until Stop is called or ctx is cancelled, and returns only after
// the last delivered message has been handed to onMessage.
func (o *Observer) Observe(ctx context.Context, dir string, onMessage MessageHandler) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyObserving
	}
	select {
	case <-o.stopCh:
		o.state.Store(int32(StateStopped))
		return nil
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.logger.Info().Str("dir", dir).Msg("Starting chat log observer")

	o.deliveries = make(chan domain.ChannelChatMessage, o.cfg.DeliveryBuffer)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for msg := range o.deliveries {
			onMessage(msg)
		}
	}()

	events := make(chan watcher.Event, o.cfg.DeliveryBuffer)
	watching := make(chan struct{})
	var readyOnce sync.Once

	var g errgroup.Group
	g.Go(func() error {
		select {
		case <-o.stopCh:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		ready := func() { readyOnce.Do(func() { close(watching) }) }
		err := o.watcher.Observe(ctx, dir, ready, func(ev watcher.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		return nil
	})
	g.Go(func() error {
		o.run(ctx, dir, watching, events)
		return nil
	})

	err := g.Wait()
	o.state.Store(int32(StateStopped))

	// Every producer has returned, so the queue can be drained and closed
	close(o.deliveries)
	<-consumerDone

	if err != nil {
		o.logger.Error().Err(err).Str("dir", dir).Msg("Chat log observer stopped with error")
		return err
	}
	o.logger.Info().Str("dir", dir).Msg("Chat log observer stopped")
	return nil
}

// Stop tears down the watch subscription. Reads already in progress complete;
// nothing new is scheduled. Safe to call more than once and before Observe.
func (o *Observer) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
		o.watcher.Stop()
		if !o.started.Load() {
			o.state.Store(int32(StateStopped))
		}
	})
}

// ActiveFiles returns the filenames currently being tailed, sorted
func (o *Observer) ActiveFiles() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.active))
	for name := range o.active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Progress returns the reading progress of active files, ordered by filename
func (o *Observer) Progress() []domain.FileReadingProgress {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()

	out := make([]domain.FileReadingProgress, 0, len(o.progress))
	for _, p := range o.progress {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

// run lists dir once the watch is in place, so a file created between the
// listing and the subscription cannot be missed, then handles events.
func (o *Observer) run(ctx context.Context, dir string, watching <-chan struct{}, events <-chan watcher.Event) {
	select {
	case <-watching:
	case <-ctx.Done():
		return
	}

	o.reload(ctx, dir)
	if ctx.Err() != nil {
		return
	}
	o.state.CompareAndSwap(int32(StateIdle), int32(StateWatching))

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ctx.Err() != nil {
				return
			}
			o.handleEvent(ctx, dir, ev)
		}
	}
}

func (o *Observer) handleEvent(ctx context.Context, dir string, ev watcher.Event) {
	ctx, span := observability.Tracer().Start(ctx, "observer.handleEvent")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", o.runID),
		attribute.String("kind", ev.Kind.String()),
		attribute.String("path", ev.Path),
	)

	switch ev.Kind {
	case watcher.Created:
		d, ok := o.match(ev.Path)
		if !ok {
			return
		}
		o.logger.Debug().Str("file", d.Filename).Msg("Chat log created")
		o.registry.Add(*d)
		o.reselect(ctx)

	case watcher.Deleted:
		name := filepath.Base(ev.Path)
		o.logger.Debug().Str("file", name).Msg("Chat log deleted")
		o.registry.Remove(name)
		o.tracker.Forget(ctx, ev.Path)
		o.reselect(ctx)

	case watcher.Modified:
		name := filepath.Base(ev.Path)
		o.mu.Lock()
		sel, ok := o.active[name]
		o.mu.Unlock()

		d, matched := o.match(ev.Path)
		if ok {
			if matched {
				o.registry.Add(*d)
			}
			o.tailSelection(ctx, sel)
			return
		}
		// A file whose header was not written yet when it was created has no
		// active file in its group; selection is retried once content arrives
		if matched && !o.groupActive(d.GroupKey()) {
			o.registry.Add(*d)
			o.reselect(ctx)
		}

	case watcher.Overflow:
		o.logger.Warn().Str("dir", dir).Msg("Directory events were dropped, reloading")
		o.reload(ctx, dir)
	}
}

// groupActive reports whether some file of the group is being tailed
func (o *Observer) groupActive(key domain.GroupKey) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, sel := range o.active {
		if sel.Descriptor.GroupKey() == key {
			return true
		}
	}
	return false
}

// reload lists dir, replaces the registry contents and reselects
func (o *Observer) reload(ctx context.Context, dir string) {
	ctx, span := observability.Tracer().Start(ctx, "observer.reload")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", o.runID), attribute.String("dir", dir))

	descriptors, err := o.list(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing failed")
		o.logger.Error().Err(err).Str("dir", dir).Msg("Failed to list chat log directory")
		return
	}

	o.registry.ReplaceAll(descriptors)
	span.SetAttributes(attribute.Int("files", len(descriptors)))
	o.logger.Debug().Str("dir", dir).Int("files", len(descriptors)).Msg("Chat log directory listed")

	o.reselect(ctx)
}

// list matches every directory entry in parallel
func (o *Observer) list(dir string) ([]domain.LogFileDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	matched := make([]*domain.LogFileDescriptor, len(entries))
	var g errgroup.Group
	g.SetLimit(o.cfg.ListWorkers)
	for i, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		g.Go(func() error {
			if d, ok := o.match(path); ok {
				matched[i] = d
			}
			return nil
		})
	}
	_ = g.Wait()

	descriptors := make([]domain.LogFileDescriptor, 0, len(matched))
	for _, d := range matched {
		if d != nil {
			descriptors = append(descriptors, *d)
		}
	}
	return descriptors, nil
}

// reselect recomputes the active set and tails every newly active file
func (o *Observer) reselect(ctx context.Context) {
	o.mu.Lock()
	res := o.selector.Select(o.registry.Snapshot(), o.clock.Now(), o.active)
	o.active = res.Active
	o.mu.Unlock()

	o.dropInactiveProgress(res.Active)

	var g errgroup.Group
	g.SetLimit(o.cfg.ListWorkers)
	for _, sel := range res.New {
		if ctx.Err() != nil {
			break
		}
		o.logger.Info().
			Str("file", sel.Descriptor.Filename).
			Str("character_id", sel.Descriptor.CharacterID).
			Str("channel", sel.Metadata.ChannelName).
			Msg("Chat log became active")
		g.Go(func() error {
			o.tailSelection(ctx, sel)
			return nil
		})
	}
	_ = g.Wait()
}

// tailSelection reads the unread part of an active file and delivers its messages.
// A file never read before starts at 0; a file that shrank restarts at 0.
func (o *Observer) tailSelection(ctx context.Context, sel selector.Selection) {
	path := sel.Descriptor.Path
	unlock := o.paths.lock(path)
	defer unlock()

	// Reads that already started finish even if the observer is stopping
	ctx = context.WithoutCancel(ctx)

	info, err := os.Stat(path)
	if err != nil {
		o.logger.Debug().Err(err).Str("file", path).Msg("Active chat log is not readable")
		return
	}

	from := o.tracker.Resolve(ctx, path, info.Size())
	msgs, next := o.tailer.Tail(ctx, sel.Descriptor, sel.Metadata, from)
	o.tracker.Advance(ctx, path, next)
	o.recordProgress(sel, info.Size(), next, msgs)

	for _, msg := range msgs {
		out := domain.ChannelChatMessage{Message: msg, Metadata: sel.Metadata}
		o.dedup.AdmitFunc(msg, func() {
			o.deliveries <- out
		})
	}
}

func (o *Observer) recordProgress(sel selector.Selection, size, off int64, msgs []domain.ChatMessage) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()

	p := o.progress[sel.Descriptor.Filename]
	p.Timestamp = o.clock.Now()
	p.FilePath = sel.Descriptor.Path
	p.FileName = sel.Descriptor.Filename
	p.CharacterID = sel.Descriptor.CharacterID
	p.ChannelName = sel.Metadata.ChannelName
	p.FileSizeBytes = size
	p.OffsetBytes = off
	p.MessagesRead += uint64(len(msgs))
	if n := len(msgs); n > 0 {
		p.LastTimestamp = msgs[n-1].Timestamp
	}
	o.progress[sel.Descriptor.Filename] = p
}

func (o *Observer) dropInactiveProgress(active selector.ActiveMap) {
	o.progressMu.Lock()
	defer o.progressMu.Unlock()

	for name := range o.progress {
		if _, ok := active[name]; !ok {
			delete(o.progress, name)
		}
	}
}
