package embed

import (
	"context"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultQueryCacheSize is the number of query vectors kept in memory.
const DefaultQueryCacheSize = 256

// QueryCache keeps recent search-query vectors in memory so a repeated
// query, or a page of results fetched again, skips the provider round trip.
// Identical queries arriving together share one provider call.
//
// Only Embed is cached. EmbedBatch is index-build traffic, which the
// durable embedding cache already deduplicates, so it passes through.
type QueryCache struct {
	inner   Embedder
	vectors *lru.Cache[string, []float32]
	flight  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// QueryCacheStats is a point-in-time view of a QueryCache.
type QueryCacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// NewQueryCache wraps inner with an LRU of size entries (0 means the default).
func NewQueryCache(inner Embedder, size int) *QueryCache {
	if size <= 0 {
		size = DefaultQueryCacheSize
	}
	// lru.New only fails for non-positive sizes.
	vectors, _ := lru.New[string, []float32](size)
	return &QueryCache{inner: inner, vectors: vectors}
}

// queryKey ties a query to the model that embeds it. Runs of whitespace are
// collapsed, so "tokyo  flights " and "tokyo flights" share an entry; case
// is kept because embedding models are case sensitive.
func (c *QueryCache) queryKey(query string) string {
	return c.inner.ModelName() + "\x00" + strings.Join(strings.Fields(query), " ")
}

// Embed returns the cached vector for query, embedding it on a miss.
func (c *QueryCache) Embed(ctx context.Context, query string) ([]float32, error) {
	key := c.queryKey(query)
	if vec, ok := c.vectors.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	v, err, _ := c.flight.Do(key, func() (any, error) {
		vec, err := c.inner.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		c.vectors.Add(key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// EmbedBatch passes through to the wrapped embedder uncached.
func (c *QueryCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

// Dimensions returns the wrapped embedder's dimension.
func (c *QueryCache) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the wrapped embedder's model.
func (c *QueryCache) ModelName() string {
	return c.inner.ModelName()
}

// Available reports whether the wrapped embedder is reachable.
func (c *QueryCache) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close closes the wrapped embedder.
func (c *QueryCache) Close() error {
	return c.inner.Close()
}

// Inner returns the wrapped embedder.
func (c *QueryCache) Inner() Embedder {
	return c.inner
}

// Stats reports the cache's size and hit counts.
func (c *QueryCache) Stats() QueryCacheStats {
	return QueryCacheStats{
		Entries: c.vectors.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
