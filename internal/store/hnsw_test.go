package store

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

func randomEntries(n, dims int, seed int64) []CachedEmbedding {
	rng := rand.New(rand.NewSource(seed))
	entries := make([]CachedEmbedding, n)
	for i := range entries {
		v := make([]float32, dims)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		entries[i] = entry(fmt.Sprintf("m%d", i), KindMessage, fmt.Sprintf("c%d", i%10), v...)
	}
	return entries
}

func TestHNSWIndex_TopK_ExactScoresAndOrdering(t *testing.T) {
	entries := randomEntries(300, 32, 42)
	idx, err := NewHNSWIndex(32, entries, HNSWConfig{})
	require.NoError(t, err)
	flat, err := NewFlatIndex(32, entries)
	require.NoError(t, err)

	query := entries[5].Vector
	hits, err := idx.TopK(query, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	// The query's own vector is always found first.
	assert.Equal(t, "m5", hits[0].ID)

	exact, err := flat.TopK(query, 300)
	require.NoError(t, err)
	exactScore := make(map[string]float32, len(exact))
	for _, h := range exact {
		exactScore[h.ID] = h.Score
	}

	for i, h := range hits {
		assert.InDelta(t, exactScore[h.ID], h.Score, 1e-6, "rescored hits carry exact scores")
		if i > 0 {
			assert.LessOrEqual(t, h.Score, hits[i-1].Score)
		}
	}
}

func TestHNSWIndex_TopK_HighRecallOnSmallSet(t *testing.T) {
	entries := randomEntries(200, 16, 3)
	idx, err := NewHNSWIndex(16, entries, HNSWConfig{RescoreFactor: 8})
	require.NoError(t, err)
	flat, err := NewFlatIndex(16, entries)
	require.NoError(t, err)

	query := entries[100].Vector
	approx, err := idx.TopK(query, 5)
	require.NoError(t, err)
	exact, err := flat.TopK(query, 5)
	require.NoError(t, err)

	found := 0
	want := make(map[string]bool)
	for _, h := range exact {
		want[h.ID] = true
	}
	for _, h := range approx {
		if want[h.ID] {
			found++
		}
	}
	assert.GreaterOrEqual(t, found, 4, "recall@5 should be high for 200 entries")
}

func TestHNSWIndex_TopK_DimensionMismatch(t *testing.T) {
	idx, err := NewHNSWIndex(4, randomEntries(10, 4, 1), HNSWConfig{})
	require.NoError(t, err)

	_, err = idx.TopK([]float32{1, 2}, 3)
	assert.True(t, lenserrors.IsDimensionMismatch(err))
}

func TestHNSWIndex_NilIsNotReady(t *testing.T) {
	var idx *HNSWIndex
	_, err := idx.TopK([]float32{1}, 1)
	assert.True(t, lenserrors.IsIndexNotReady(err))
	assert.Zero(t, idx.Len())
}

func TestHNSWIndex_Empty_ReturnsNoHits(t *testing.T) {
	idx, err := NewHNSWIndex(0, nil, HNSWConfig{})
	require.NoError(t, err)

	hits, err := idx.TopK([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestHNSWIndex_SkipsZeroVectors(t *testing.T) {
	idx, err := NewHNSWIndex(0, []CachedEmbedding{
		entry("zero", KindMessage, "c1", 0, 0),
		entry("x", KindMessage, "c1", 1, 0),
		entry("y", KindMessage, "c1", 0, 1),
	}, HNSWConfig{})
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.TopK([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, "x", hits[0].ID)
	for _, h := range hits {
		assert.NotEqual(t, "zero", h.ID)
	}
}
