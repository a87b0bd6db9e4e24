package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavoritesStore_Toggle(t *testing.T) {
	ctx := context.Background()
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()

	favs := NewFavoritesStore(db)

	on, err := favs.Toggle(ctx, "conv-trip")
	require.NoError(t, err)
	assert.True(t, on)

	is, err := favs.IsFavorite(ctx, "conv-trip")
	require.NoError(t, err)
	assert.True(t, is)

	all, err := favs.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"conv-trip": true}, all)

	on, err = favs.Toggle(ctx, "conv-trip")
	require.NoError(t, err)
	assert.False(t, on)

	is, err = favs.IsFavorite(ctx, "conv-trip")
	require.NoError(t, err)
	assert.False(t, is)
}

func TestFavoritesStore_SharesDatabaseWithCache(t *testing.T) {
	ctx := context.Background()
	db, err := Open("")
	require.NoError(t, err)
	defer db.Close()

	cache, err := NewSQLiteCache(db)
	require.NoError(t, err)
	favs := NewFavoritesStore(db)

	_, err = cache.Put(ctx, entry("m1", KindMessage, "c1", 1))
	require.NoError(t, err)
	_, err = favs.Toggle(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, cache.Reset(ctx))

	is, err := favs.IsFavorite(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, is, "resetting the embedding cache keeps favorites")
}
