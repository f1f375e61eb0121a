// Package tailer reads the unread suffix of chat log files.
package tailer

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
	"github.com/SteelMorgan/chatlog-watcher/internal/observability"
	"github.com/SteelMorgan/chatlog-watcher/internal/retry"
)

// LogParser parses a chat log body starting at a byte offset
type LogParser interface {
	Parse(path string, fromOffset int64) ([]domain.ChatMessage, int64, error)
}

// Tailer reads new messages from a file since its last offset
type Tailer struct {
	parser   LogParser
	retryCfg retry.Config
}

// New creates a tailer. Transient read failures are retried per retryCfg.
func New(parser LogParser, retryCfg retry.Config) *Tailer {
	return &Tailer{
		parser:   parser,
		retryCfg: retryCfg,
	}
}

type parseResult struct {
	messages  []domain.ChatMessage
	newOffset int64
}

// Tail returns the messages appended to the file after fromOffset and the offset
// to continue from. On failure it logs and returns no messages with fromOffset,
// so the next triggering event retries. Persisting the offset is up to the caller.
func (t *Tailer) Tail(ctx context.Context, d domain.LogFileDescriptor, meta domain.LogFileMetadata, fromOffset int64) ([]domain.ChatMessage, int64) {
	ctx, span := observability.Tracer().Start(ctx, "tailer.Tail")
	defer span.End()
	span.SetAttributes(
		attribute.String("file", d.Filename),
		attribute.String("channel", meta.ChannelName),
		attribute.Int64("from_offset", fromOffset),
	)

	res, err := retry.DoWithResult(ctx, t.retryCfg, func() (parseResult, error) {
		msgs, off, err := t.parser.Parse(d.Path, fromOffset)
		return parseResult{messages: msgs, newOffset: off}, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		log.Error().
			Err(err).
			Str("file", d.Path).
			Int64("offset", fromOffset).
			Msg("Could not read chat log file")
		return nil, fromOffset
	}

	if res.newOffset < fromOffset {
		log.Warn().
			Str("file", d.Path).
			Int64("from_offset", fromOffset).
			Int64("new_offset", res.newOffset).
			Msg("Parser reported offset before start, ignoring result")
		return nil, fromOffset
	}

	span.SetAttributes(
		attribute.Int("messages", len(res.messages)),
		attribute.Int64("new_offset", res.newOffset),
	)

	if len(res.messages) > 0 {
		log.Debug().
			Str("file", d.Filename).
			Str("channel", meta.ChannelName).
			Int("messages", len(res.messages)).
			Int64("offset_bytes", res.newOffset).
			Msg("Read new chat messages")
	}

	return res.messages, res.newOffset
}
