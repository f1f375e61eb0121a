package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/chatlog-watcher/internal/config"
	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
	"github.com/SteelMorgan/chatlog-watcher/internal/observability"
	"github.com/SteelMorgan/chatlog-watcher/internal/service"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("version", version).
		Str("dir", cfg.ChatLogDir).
		Msg("Starting chat log watcher")

	// Initialize tracer (no-op when disabled)
	shutdown, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "chatlog-watcher",
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		Protocol:       cfg.TracingProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdown(context.Background())
	}

	// Create watch service
	watchSvc, err := service.NewWatchService(cfg, printMessage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create watch service")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start watch service
	errChan := make(chan error, 1)
	go func() {
		if err := watchSvc.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	log.Info().Msg("Watch service started successfully")

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("Watch service error")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	cancel()

	if err := watchSvc.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	// Read after Stop so tails finished during shutdown are included
	for _, p := range watchSvc.Progress() {
		log.Debug().
			Str("file", p.FileName).
			Int64("offset_bytes", p.OffsetBytes).
			Uint64("messages", p.MessagesRead).
			Msg("Final reading progress")
	}

	log.Info().Msg("Watch service stopped")
}

func printMessage(m domain.ChannelChatMessage) {
	log.Info().
		Str("channel", m.Metadata.ChannelName).
		Str("listener", m.Metadata.Listener).
		Time("sent_at", m.Message.Timestamp).
		Str("author", m.Message.Author).
		Msg(m.Message.Text)
}
