package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/analyst-stream/testutil"
)

func seedStore(t *testing.T) (*EventStore, []string) {
	t.Helper()
	ctx := context.Background()
	store, err := OpenEventStore(testutil.TempDBPath(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var ids []string
	for i, code := range []string{testStrategyA, testStrategyB} {
		messageID := fmt.Sprintf("m%d", i+1)
		rec, err := store.CreateConversation(ctx, "")
		require.NoError(t, err)
		require.NoError(t, store.AppendEvents(ctx, rec.ID, CreateTestFenceEvents("prompt", messageID, code)))
		ids = append(ids, rec.ID)
	}
	return store, ids
}

func TestTranscriptLoader_LoadAllPopulatesCache(t *testing.T) {
	store, _ := seedStore(t)
	cache := NewCacheManager(filepath.Join(testutil.CreateTempDir(t), "cache"))
	loader := NewTranscriptLoader(store, cache, nil, 2)

	got, err := loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	rev, err := store.Revision(context.Background())
	require.NoError(t, err)
	valid, err := cache.IsCacheValid(store.Path(), rev)
	require.NoError(t, err)
	assert.True(t, valid)

	cached, err := cache.LoadAllTranscripts()
	require.NoError(t, err)
	assert.Len(t, cached, 2)

	again, err := loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestTranscriptLoader_WithoutCache(t *testing.T) {
	store, ids := seedStore(t)
	loader := NewTranscriptLoader(store, nil, nil, 0)

	got, err := loader.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	one, err := loader.Load(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, ids[1], one.ID)
	assert.Equal(t, testStrategyB, one.Artifact.Code)
	assert.Equal(t, "prompt", one.Title)
}

func TestTranscriptLoader_LoadNotFound(t *testing.T) {
	store, _ := seedStore(t)
	loader := NewTranscriptLoader(store, nil, nil, 1)

	_, err := loader.Load(context.Background(), "does-not-exist")
	assert.True(t, IsNotFound(err))
}

func TestTranscriptLoader_LoadEmptyConversation(t *testing.T) {
	store, _ := seedStore(t)
	rec, err := store.CreateConversation(context.Background(), "empty")
	require.NoError(t, err)

	loader := NewTranscriptLoader(store, nil, nil, 1)
	_, err = loader.Load(context.Background(), rec.ID)
	var re *ReplayError
	assert.ErrorAs(t, err, &re)
}

func TestTranscriptLoader_CacheFollowsStore(t *testing.T) {
	ctx := context.Background()
	store, _ := seedStore(t)
	cache := NewCacheManager(filepath.Join(testutil.CreateTempDir(t), "cache"))
	loader := NewTranscriptLoader(store, cache, nil, 1)

	got, err := loader.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	rec, err := store.CreateConversation(ctx, "third")
	require.NoError(t, err)
	require.NoError(t, store.AppendEvents(ctx, rec.ID, CreateTestFenceEvents("prompt", "m3", testStrategyC)))

	got, err = loader.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
