package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStatusStore(t *testing.T) *StatusStore {
	t.Helper()
	cfg := DefaultStatusStoreConfig()
	cfg.DBPath = ":memory:"
	store, err := NewStatusStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStatusStore_PutGet(t *testing.T) {
	store := newTestStatusStore(t)
	ctx := context.Background()

	item := NewItem("user-1", "user_message", nil, PriorityHigh)
	require.NoError(t, store.Put(ctx, item))

	record, ok, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, item.ID, record.ID)
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, PriorityHigh, record.Priority)
}

func TestStatusStore_GetMissing(t *testing.T) {
	store := newTestStatusStore(t)

	_, ok, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStatusStore_UpdateOverwrites(t *testing.T) {
	store := newTestStatusStore(t)
	ctx := context.Background()

	item := NewItem("user-1", "user_message", nil, PriorityNormal)
	require.NoError(t, store.Put(ctx, item))

	item.MarkProcessing()
	item.MarkRetrying("transient")
	require.NoError(t, store.Put(ctx, item))

	record, ok, err := store.Get(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusRetrying, record.Status)
	assert.Equal(t, 1, record.RetryCount)
	assert.Equal(t, "transient", record.LastError)
}

func TestStatusStore_Counts(t *testing.T) {
	store := newTestStatusStore(t)
	ctx := context.Background()

	completed := NewItem("u", "a", nil, PriorityNormal)
	completed.MarkCompleted()
	failed := NewItem("u", "b", nil, PriorityNormal)
	failed.MarkFailed("x")
	pending := NewItem("u", "c", nil, PriorityNormal)

	for _, item := range []*Item{completed, failed, pending} {
		require.NoError(t, store.Put(ctx, item))
	}

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[StatusCompleted])
	assert.Equal(t, 1, counts[StatusFailed])
	assert.Equal(t, 1, counts[StatusPending])
}
