package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/ale-go/pkg/core"
)

func TestSQLiteStore(t *testing.T) {
	t.Run("save and load round trip", func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer store.Close()

		now := time.Now().UTC().Truncate(time.Second)
		entry := Entry{
			ID:           "e-1",
			Type:         EntryFailedStrategy,
			Content:      "linear scan",
			Metadata:     map[string]interface{}{"reason": "too slow"},
			TaskPattern:  "search sorted data",
			Confidence:   0.8,
			HitCount:     3,
			LastAccessed: now,
			CreatedAt:    now,
		}
		require.NoError(t, store.Save(entry))

		loaded, err := store.LoadAll()
		require.NoError(t, err)
		require.Len(t, loaded, 1)

		got := loaded[0]
		assert.Equal(t, entry.ID, got.ID)
		assert.Equal(t, entry.Type, got.Type)
		assert.Equal(t, entry.Content, got.Content)
		assert.Equal(t, entry.TaskPattern, got.TaskPattern)
		assert.Equal(t, entry.Confidence, got.Confidence)
		assert.Equal(t, entry.HitCount, got.HitCount)
		assert.Equal(t, "too slow", got.Metadata["reason"])
	})

	t.Run("save is an upsert", func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer store.Close()

		entry := Entry{ID: "e-1", Type: EntryInsight, Content: "v1", TaskPattern: "t",
			LastAccessed: time.Now(), CreatedAt: time.Now()}
		require.NoError(t, store.Save(entry))

		entry.Content = "v2"
		require.NoError(t, store.Save(entry))

		loaded, err := store.LoadAll()
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, "v2", loaded[0].Content)
	})

	t.Run("touch updates recall bookkeeping", func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Save(Entry{ID: "e-1", Type: EntryInsight, Content: "c", TaskPattern: "t",
			LastAccessed: time.Now(), CreatedAt: time.Now()}))
		require.NoError(t, store.Touch("e-1", 7, time.Now()))

		loaded, err := store.LoadAll()
		require.NoError(t, err)
		require.Len(t, loaded, 1)
		assert.Equal(t, 7, loaded[0].HitCount)
	})

	t.Run("delete removes the entry", func(t *testing.T) {
		store, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.Save(Entry{ID: "e-1", Type: EntryInsight, Content: "c", TaskPattern: "t",
			LastAccessed: time.Now(), CreatedAt: time.Now()}))
		require.NoError(t, store.Delete("e-1"))

		loaded, err := store.LoadAll()
		require.NoError(t, err)
		assert.Empty(t, loaded)
	})
}

func TestWorkingMemoryPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	first := New(WithPersistence(store))
	require.NoError(t, first.Store(ctx, Entry{
		ID:          "e-1",
		Type:        EntryFailedStrategy,
		Content:     "greedy matching",
		TaskPattern: core.TaskPattern("align two sequences"),
		Confidence:  0.8,
	}))
	require.NoError(t, store.Close())

	// A fresh working memory over the same file sees the prior entry.
	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	second := New(WithPersistence(reopened))
	assert.Equal(t, 1, second.Len())

	matches := second.Recall(ctx, "align two sequences", EntryFailedStrategy)
	require.Len(t, matches, 1)
	assert.Equal(t, "greedy matching", matches[0].Entry.Content)
}
