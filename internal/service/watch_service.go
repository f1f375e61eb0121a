package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/chatlog-watcher/internal/config"
	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
	"github.com/SteelMorgan/chatlog-watcher/internal/observer"
	"github.com/SteelMorgan/chatlog-watcher/internal/offset"
)

// WatchService owns the offset store and the observer for one chat log directory
type WatchService struct {
	cfg       *config.Config
	tracker   *offset.Tracker
	observer  *observer.Observer
	onMessage observer.MessageHandler

	startOnce sync.Once
	done      chan struct{}
	stopped   atomic.Bool
	closeOnce sync.Once
}

// NewWatchService creates a new watch service. Offsets are kept in bbolt when
// cfg.OffsetDBPath is set and in memory otherwise.
func NewWatchService(cfg *config.Config, onMessage observer.MessageHandler, opts ...observer.Option) (*WatchService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if onMessage == nil {
		return nil, fmt.Errorf("message handler is required")
	}

	var store offset.OffsetStore
	if cfg.OffsetDBPath != "" {
		boltStore, err := offset.NewBoltDBStore(cfg.OffsetDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open offset store: %w", err)
		}
		store = boltStore
		log.Info().Str("path", cfg.OffsetDBPath).Msg("Persisting offsets")
	}
	tracker := offset.NewTracker(store)

	obs, err := observer.New(cfg, append([]observer.Option{observer.WithTracker(tracker)}, opts...)...)
	if err != nil {
		_ = tracker.Close()
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}

	return &WatchService{
		cfg:       cfg,
		tracker:   tracker,
		observer:  obs,
		onMessage: onMessage,
		done:      make(chan struct{}),
	}, nil
}

// Start follows the configured directory until ctx is cancelled or Stop is called
func (s *WatchService) Start(ctx context.Context) error {
	err := observer.ErrAlreadyObserving
	s.startOnce.Do(func() {
		defer close(s.done)
		log.Info().
			Str("dir", s.cfg.ChatLogDir).
			Str("run_id", s.observer.RunID()).
			Msg("Watch service starting...")
		err = s.observer.Observe(ctx, s.cfg.ChatLogDir, s.onMessage)
	})
	if errors.Is(err, observer.ErrAlreadyObserving) && s.stopped.Load() {
		return nil
	}
	return err
}

// Progress returns the reading progress of the files being tailed
func (s *WatchService) Progress() []domain.FileReadingProgress {
	return s.observer.Progress()
}

// Stop stops the observer, waits for it to finish delivering and closes the offset store
func (s *WatchService) Stop() error {
	log.Info().Msg("Watch service stopping...")

	s.stopped.Store(true)
	s.observer.Stop()
	// A service that was never started has nothing to wait for
	s.startOnce.Do(func() { close(s.done) })
	<-s.done

	var err error
	s.closeOnce.Do(func() {
		err = s.tracker.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to close offset store: %w", err)
	}
	return nil
}
