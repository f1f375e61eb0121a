package offset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoltDBStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewBoltDBStore(filepath.Join(t.TempDir(), "offsets.db"))
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Get(ctx, "/logs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	require.NoError(t, store.Set(ctx, "/logs/a.txt", 1024))
	require.NoError(t, store.Set(ctx, "/logs/b.txt", 2048))

	got, err = store.Get(ctx, "/logs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), got)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"/logs/a.txt": 1024, "/logs/b.txt": 2048}, all)

	require.NoError(t, store.Delete(ctx, "/logs/a.txt"))
	got, err = store.Get(ctx, "/logs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	assert.Error(t, store.Set(ctx, "/logs/c.txt", -1))
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "a", 1))

	all, err := store.List(ctx)
	require.NoError(t, err)
	all["a"] = 99

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "List must return a copy")
}
