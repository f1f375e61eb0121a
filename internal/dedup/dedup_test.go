package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SteelMorgan/chatlog-watcher/internal/domain"
)

func newTestDedup() (*Deduplicator, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	return New(clk, 2*time.Second, 25), clk
}

func msg(author, text string, ts time.Time) domain.ChatMessage {
	return domain.ChatMessage{Author: author, Text: text, Timestamp: ts}
}

func TestAdmitSuppressesRepeatInsideWindow(t *testing.T) {
	d, clk := newTestDedup()
	t0 := clk.Now()

	assert.True(t, d.Admit(msg("Bob", "Warp to X", t0)))

	clk.Add(time.Second)
	assert.False(t, d.Admit(msg("Bob", "Warp to X", clk.Now())), "repeat after 1s is suppressed")

	clk.Add(2 * time.Second)
	assert.True(t, d.Admit(msg("Bob", "Warp to X", clk.Now())), "repeat after 3s is delivered")
}

func TestAdmitComparesAuthorAndText(t *testing.T) {
	d, clk := newTestDedup()
	now := clk.Now()

	assert.True(t, d.Admit(msg("Bob", "hello", now)))
	assert.True(t, d.Admit(msg("Alice", "hello", now)), "different author")
	assert.True(t, d.Admit(msg("Bob", "hello!", now)), "different text")
	assert.False(t, d.Admit(msg("Alice", "hello", now)))
}

func TestAdmitUsesMessageTimestamp(t *testing.T) {
	d, clk := newTestDedup()

	// A message that was written long ago is not considered recent
	assert.True(t, d.Admit(msg("Bob", "old", clk.Now().Add(-10*time.Second))))
	assert.True(t, d.Admit(msg("Bob", "old", clk.Now())))
	assert.False(t, d.Admit(msg("Bob", "old", clk.Now())))
}

func TestWindowNeverExceedsCapacity(t *testing.T) {
	d, clk := newTestDedup()

	// 30 distinct messages inside one second are all delivered
	delivered := 0
	for i := 0; i < 30; i++ {
		clk.Add(30 * time.Millisecond)
		if d.Admit(msg("Bob", fmt.Sprintf("message %d", i), clk.Now())) {
			delivered++
		}
		assert.LessOrEqual(t, d.Len(), 25)
		if i == 24 {
			assert.Equal(t, 24, d.Len(), "pruned when the 25th message arrives")
		}
	}
	assert.Equal(t, 30, delivered)
}

func TestPruneDropsStaleEntries(t *testing.T) {
	d, clk := newTestDedup()

	for i := 0; i < 20; i++ {
		d.Admit(msg("Bob", fmt.Sprintf("old %d", i), clk.Now()))
	}
	clk.Add(5 * time.Second)
	for i := 0; i < 5; i++ {
		d.Admit(msg("Bob", fmt.Sprintf("new %d", i), clk.Now()))
	}

	// The 25th admission pruned everything older than the window
	assert.Equal(t, 5, d.Len())

	// Recent entries still suppress repeats after pruning
	assert.False(t, d.Admit(msg("Bob", "new 4", clk.Now())))
	assert.True(t, d.Admit(msg("Bob", "old 3", clk.Now())))
}

func TestAdmitFuncDeliversInOrder(t *testing.T) {
	d, clk := newTestDedup()

	var (
		mu  sync.Mutex
		got []string
		wg  sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				text := fmt.Sprintf("%d-%d", w, i)
				d.AdmitFunc(msg("Bob", text, clk.Now()), func() {
					mu.Lock()
					got = append(got, text)
					mu.Unlock()
				})
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, got, 200)
	// Per-producer order is preserved
	last := map[string]int{}
	for _, text := range got {
		var w, i int
		_, err := fmt.Sscanf(text, "%d-%d", &w, &i)
		require.NoError(t, err)
		key := fmt.Sprint(w)
		if prev, ok := last[key]; ok {
			assert.Greater(t, i, prev)
		}
		last[key] = i
	}
}

func TestAdmitFuncSkipsDuplicates(t *testing.T) {
	d, clk := newTestDedup()
	calls := 0

	assert.True(t, d.AdmitFunc(msg("Bob", "x", clk.Now()), func() { calls++ }))
	assert.False(t, d.AdmitFunc(msg("Bob", "x", clk.Now()), func() { calls++ }))
	assert.Equal(t, 1, calls)
}

func TestNewDefaults(t *testing.T) {
	d := New(nil, time.Second, 0)
	assert.Equal(t, 2, d.capacity)
	assert.True(t, d.Admit(msg("a", "b", time.Now())))
}
