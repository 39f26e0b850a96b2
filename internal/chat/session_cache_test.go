package chat

import (
	"context"
	"path/filepath"
	"testing"

	"sql-chat/internal/database"
	"sql-chat/internal/sqldb"
	"sql-chat/internal/sqldb/sqldbtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	cache := NewSessionCache(2)
	a := &Session{id: [16]byte{1}, history: NewHistory()}
	b := &Session{id: [16]byte{2}, history: NewHistory()}
	c := &Session{id: [16]byte{3}, history: NewHistory()}

	cache.Add(a)
	cache.Add(b)
	_, ok := cache.Get(a.ID())
	require.True(t, ok)

	cache.Add(c)
	assert.Equal(t, 2, cache.Len())
	_, ok = cache.Get(b.ID())
	assert.False(t, ok)
	assert.True(t, b.evicted)
	assert.False(t, a.evicted)
}

func TestConnectLandsOnLiveSessionAfterEviction(t *testing.T) {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	manager := NewChatSessionManager(db, NewPipeline(fake.NewFakeLLM([]string{"SELECT 1"})), ManagerConfig{CacheSize: 1})
	t.Cleanup(manager.Close)

	first, err := manager.StartSession("jsmith", "first")
	require.NoError(t, err)
	stale, err := manager.Session("jsmith", first.ID)
	require.NoError(t, err)

	// A second session pushes the first out while its connection is opening.
	_, err = manager.StartSession("jsmith", "second")
	require.NoError(t, err)

	handle, err := sqldb.Connect(context.Background(), sqldbtest.Catalog(t))
	require.NoError(t, err)

	assert.False(t, stale.Attach(handle))
	assert.False(t, stale.Connected())

	require.NoError(t, manager.attach("jsmith", first.ID, handle))
	live, err := manager.Session("jsmith", first.ID)
	require.NoError(t, err)
	assert.NotSame(t, stale, live)
	assert.True(t, live.Connected())
}
