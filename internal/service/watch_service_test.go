package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/chatlog-watcher/internal/config"
	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
	"github.com/SteelMorgan/chatlog-watcher/internal/offset"
	"github.com/SteelMorgan/chatlog-watcher/internal/testsupport"
)

type messages struct {
	mu    sync.Mutex
	texts []string
}

func (m *messages) handle(msg domain.ChannelChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, msg.Message.Text)
}

func (m *messages) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

func TestNewWatchServiceValidation(t *testing.T) {
	_, err := NewWatchService(nil, func(domain.ChannelChatMessage) {})
	assert.Error(t, err)

	cfg := config.Default()
	cfg.ChatLogDir = t.TempDir()
	_, err = NewWatchService(cfg, nil)
	assert.Error(t, err)

	cfg.ChatLogDir = ""
	_, err = NewWatchService(cfg, func(domain.ChannelChatMessage) {})
	assert.Error(t, err)
}

func TestWatchServicePersistsOffsets(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "offsets.db")

	started := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	path := filepath.Join(dir, testsupport.Filename("Local", started, "1"))
	testsupport.WriteChatLog(t, path,
		testsupport.Header("local", "Local", "Alice", started)+
			testsupport.Line(started, "Bob", "hello"),
		time.Time{})

	cfg := config.Default()
	cfg.ChatLogDir = dir
	cfg.OffsetDBPath = dbPath

	got := &messages{}
	svc, err := NewWatchService(cfg, got.handle)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()

	require.Eventually(t, func() bool { return len(got.snapshot()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return len(svc.Progress()) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Stop())
	require.NoError(t, <-done)
	assert.Equal(t, []string{"hello"}, got.snapshot())

	// Progress stays readable after Stop for the final shutdown report
	progress := svc.Progress()
	require.Len(t, progress, 1)
	assert.Equal(t, path, progress[0].FilePath)
	assert.Equal(t, uint64(1), progress[0].MessagesRead)

	// The offset survived in bbolt
	store, err := offset.NewBoltDBStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	off, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	assert.Greater(t, off, int64(0))
}

func TestWatchServiceStopBeforeStart(t *testing.T) {
	cfg := config.Default()
	cfg.ChatLogDir = t.TempDir()

	svc, err := NewWatchService(cfg, func(domain.ChannelChatMessage) {})
	require.NoError(t, err)

	require.NoError(t, svc.Stop())
	assert.NoError(t, svc.Start(context.Background()))
	assert.NoError(t, svc.Stop())
}
