package imagecache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-imageload/pkg/imagecache"
)

func TestNewMemoryStore(t *testing.T) {
	_, err := imagecache.NewMemoryStore(0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maxEntries must be greater than 0")
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Miss returns ErrNotFound", func(t *testing.T) {
		// Arrange
		store, err := imagecache.NewMemoryStore(2)
		require.NoError(t, err)

		// Act
		_, err = store.Fetch(ctx, "missing")

		// Assert
		require.Error(t, err)
		assert.ErrorIs(t, err, imagecache.ErrNotFound)
	})

	t.Run("Write then Fetch round-trips", func(t *testing.T) {
		// Arrange
		store, err := imagecache.NewMemoryStore(2)
		require.NoError(t, err)
		data := []byte{0x89, 0x50, 0x4e, 0x47}

		// Act
		require.NoError(t, store.Write(ctx, "key1", data))
		got, err := store.Fetch(ctx, "key1")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("Eviction policy works correctly", func(t *testing.T) {
		// Arrange: a store with room for two entries.
		store, err := imagecache.NewMemoryStore(2)
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, "key1", []byte("one")))
		require.NoError(t, store.Write(ctx, "key2", []byte("two")))

		// Act 1: touch key1 so key2 becomes the least recently used.
		_, err = store.Fetch(ctx, "key1")
		require.NoError(t, err)

		// Act 2: writing a third entry must evict key2.
		require.NoError(t, store.Write(ctx, "key3", []byte("three")))

		// Assert
		_, err = store.Fetch(ctx, "key2")
		assert.ErrorIs(t, err, imagecache.ErrNotFound, "key2 should have been evicted")

		got1, err := store.Fetch(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got1)

		got3, err := store.Fetch(ctx, "key3")
		require.NoError(t, err)
		assert.Equal(t, []byte("three"), got3)
	})

	t.Run("Rewriting a key replaces its value without eviction", func(t *testing.T) {
		// Arrange
		store, err := imagecache.NewMemoryStore(2)
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, "key1", []byte("old")))
		require.NoError(t, store.Write(ctx, "key2", []byte("two")))

		// Act
		require.NoError(t, store.Write(ctx, "key1", []byte("new")))

		// Assert
		got, err := store.Fetch(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), got)

		_, err = store.Fetch(ctx, "key2")
		require.NoError(t, err, "rewriting an existing key must not evict")
	})

	t.Run("Delete removes an entry", func(t *testing.T) {
		// Arrange
		store, err := imagecache.NewMemoryStore(2)
		require.NoError(t, err)
		require.NoError(t, store.Write(ctx, "key1", []byte("one")))

		// Act
		require.NoError(t, store.Delete(ctx, "key1"))
		require.NoError(t, store.Delete(ctx, "key1"), "deleting a missing key is a no-op")

		// Assert
		_, err = store.Fetch(ctx, "key1")
		assert.ErrorIs(t, err, imagecache.ErrNotFound)
	})
}

func TestMemoryStore_Close(t *testing.T) {
	store, err := imagecache.NewMemoryStore(1)
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}
