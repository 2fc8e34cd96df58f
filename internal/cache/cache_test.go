package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rookeryhq/rookery/internal/types"
)

func samplePosts() []types.Post {
	return []types.Post{
		{
			PostID:       "100",
			AuthorHandle: "alice",
			Body:         "hello",
			CreatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Likes:        3,
		},
	}
}

func TestReadWriteRoundtrip(t *testing.T) {
	c := New(t.TempDir(), 6, true, zap.NewNop())

	require.NoError(t, c.Write("Alice", 24, samplePosts()))

	posts, hit := c.Read("alice", 24, false)
	require.True(t, hit, "handle casing must not split the cache key")
	require.Len(t, posts, 1)
	assert.Equal(t, "100", posts[0].PostID)
	assert.Equal(t, "hello", posts[0].Body)
	assert.Equal(t, 3, posts[0].Likes)
}

func TestReadMissesOnUnknownHandle(t *testing.T) {
	c := New(t.TempDir(), 6, true, zap.NewNop())

	_, hit := c.Read("nobody", 24, false)
	assert.False(t, hit)
}

func TestReadKeyedByWindow(t *testing.T) {
	c := New(t.TempDir(), 6, true, zap.NewNop())
	require.NoError(t, c.Write("alice", 24, samplePosts()))

	_, hit := c.Read("alice", 48, false)
	assert.False(t, hit, "a different window is a different snapshot")
}

func TestReadExpiredSnapshot(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 6, true, zap.NewNop())
	require.NoError(t, c.Write("alice", 24, samplePosts()))

	stale := time.Now().Add(-7 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "alice.24h.json"), stale, stale))

	_, hit := c.Read("alice", 24, false)
	assert.False(t, hit)
}

func TestReadForceRefresh(t *testing.T) {
	c := New(t.TempDir(), 6, true, zap.NewNop())
	require.NoError(t, c.Write("alice", 24, samplePosts()))

	_, hit := c.Read("alice", 24, true)
	assert.False(t, hit)
}

func TestReadCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 6, true, zap.NewNop())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.24h.json"), []byte("{not json"), 0o644))

	_, hit := c.Read("alice", 24, false)
	assert.False(t, hit)
}

func TestDisabledCache(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, 6, false, zap.NewNop())

	require.NoError(t, c.Write("alice", 24, samplePosts()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "disabled cache never writes")

	_, hit := c.Read("alice", 24, false)
	assert.False(t, hit)
}

func TestWriteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "harvests")
	c := New(dir, 6, true, zap.NewNop())

	require.NoError(t, c.Write("alice", 24, samplePosts()))
	_, hit := c.Read("alice", 24, false)
	assert.True(t, hit)
}
