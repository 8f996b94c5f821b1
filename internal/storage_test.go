package internal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/analyst-stream/testutil"
)

// newMemoryStore returns a migrated in-memory store with a controllable clock
func newMemoryStore(t *testing.T) (*EventStore, *time.Time) {
	t.Helper()
	db := testutil.CreateInMemoryDB(t)
	require.NoError(t, Migrate(db))

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewEventStore(db, ":memory:")
	store.now = func() time.Time { return clock }
	return store, &clock
}

func TestEventStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)

	rec, err := store.CreateConversation(ctx, "  Momentum ideas ")
	require.NoError(t, err)
	assert.Len(t, rec.ID, 26)
	assert.Equal(t, "Momentum ideas", rec.Title)

	got, err := store.GetConversation(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Title, got.Title)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, 0, got.EventCount)

	_, err = store.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestEventStore_AppendAndLoadEvents(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)
	rec, err := store.CreateConversation(ctx, "strategy")
	require.NoError(t, err)

	first := CreateTestStrategyEvents("first", "call-1", testStrategyA)
	second := CreateTestFenceEvents("second", "m2", testStrategyB)
	require.NoError(t, store.AppendEvents(ctx, rec.ID, first))
	require.NoError(t, store.AppendEvents(ctx, rec.ID, second))
	require.NoError(t, store.AppendEvents(ctx, rec.ID, nil))

	events, err := store.LoadEvents(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, append(append([]StreamEvent{}, first...), second...), events)

	got, err := store.GetConversation(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, len(first)+len(second), got.EventCount)

	counts, err := store.EventTypeCounts(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[EventUserMessage])
	assert.Equal(t, 2, counts[EventFinish])
	assert.Equal(t, 1, counts[EventToolOutputAvailable])
}

func TestEventStore_AppendToMissingConversation(t *testing.T) {
	store, _ := newMemoryStore(t)
	err := store.AppendEvents(context.Background(), "missing", []StreamEvent{{Type: EventStart}})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestEventStore_LoadEventsSkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)
	rec, err := store.CreateConversation(ctx, "")
	require.NoError(t, err)
	require.NoError(t, store.AppendEvents(ctx, rec.ID, []StreamEvent{{Type: EventStart, MessageID: "a1"}}))

	_, err = store.DB().Exec(
		"INSERT INTO stream_events (conversation_id, seq, type, payload, created_at) VALUES (?, 2, 'text-delta', '{not json', 0)",
		rec.ID)
	require.NoError(t, err)
	require.NoError(t, store.AppendEvents(ctx, rec.ID, []StreamEvent{{Type: EventFinish}}))

	events, err := store.LoadEvents(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []StreamEvent{{Type: EventStart, MessageID: "a1"}, {Type: EventFinish}}, events)
}

func TestEventStore_ListOrdersByUpdate(t *testing.T) {
	ctx := context.Background()
	store, clock := newMemoryStore(t)

	older, err := store.CreateConversation(ctx, "older")
	require.NoError(t, err)
	*clock = clock.Add(time.Minute)
	newer, err := store.CreateConversation(ctx, "newer")
	require.NoError(t, err)

	list, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	*clock = clock.Add(time.Minute)
	require.NoError(t, store.AppendEvents(ctx, older.ID, []StreamEvent{{Type: EventStart}}))

	list, err = store.ListConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, older.ID, list[0].ID)
	assert.Equal(t, 1, list[0].EventCount)
}

func TestEventStore_FindConversation(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryStore(t)
	a, err := store.CreateConversation(ctx, "a")
	require.NoError(t, err)
	b, err := store.CreateConversation(ctx, "b")
	require.NoError(t, err)

	got, err := store.FindConversation(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = store.FindConversation(ctx, strings.ToLower(b.ID[:25]))
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = store.FindConversation(ctx, a.ID[:2])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = store.FindConversation(ctx, "zzz")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestEventStore_RenameAndDelete(t *testing.T) {
	ctx := context.Background()
	store, err := OpenEventStore(testutil.TempDBPath(t))
	require.NoError(t, err)
	defer store.Close()

	rec, err := store.CreateConversation(ctx, "old")
	require.NoError(t, err)
	require.NoError(t, store.AppendEvents(ctx, rec.ID, CreateTestFenceEvents("hi", "m1", testStrategyA)))

	require.NoError(t, store.RenameConversation(ctx, rec.ID, " new title "))
	got, err := store.GetConversation(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)

	require.NoError(t, store.DeleteConversation(ctx, rec.ID))
	_, err = store.GetConversation(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	var orphaned int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM stream_events").Scan(&orphaned))
	assert.Equal(t, 0, orphaned)

	assert.ErrorIs(t, store.DeleteConversation(ctx, rec.ID), ErrConversationNotFound)
	assert.ErrorIs(t, store.RenameConversation(ctx, rec.ID, "x"), ErrConversationNotFound)
}

func TestEventStore_StorageErrorWrapsCause(t *testing.T) {
	store, _ := newMemoryStore(t)
	require.NoError(t, store.Close())

	_, err := store.ListConversations(context.Background())
	require.Error(t, err)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "query", se.Op)
	assert.Equal(t, ":memory:", se.Path)
}

func TestEventStore_Revision(t *testing.T) {
	ctx := context.Background()
	store, clock := newMemoryStore(t)

	empty, err := store.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0-0-0", empty)

	rec, err := store.CreateConversation(ctx, "a")
	require.NoError(t, err)
	created, err := store.Revision(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, empty, created)

	require.NoError(t, store.AppendEvents(ctx, rec.ID, CreateTestFenceEvents("p", "m1", testStrategyA)))
	appended, err := store.Revision(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, created, appended)

	*clock = clock.Add(time.Minute)
	require.NoError(t, store.RenameConversation(ctx, rec.ID, "b"))
	renamed, err := store.Revision(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, appended, renamed)

	again, err := store.Revision(ctx)
	require.NoError(t, err)
	assert.Equal(t, renamed, again)
}
