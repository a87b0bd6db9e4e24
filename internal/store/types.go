// Package store provides the durable embedding cache (SQLite), favorites
// persistence, and the in-memory similarity indexes built from the cache.
// This is the persistence layer for all embedded data.
package store

import (
	"context"
)

// Kind tags an embeddable unit as a whole conversation or a single message.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindMessage      Kind = "message"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindConversation || k == KindMessage
}

// Meta keys stored alongside the embeddings. They pin the cache to the model
// that produced it.
const (
	// MetaKeyDimensions stores the fixed vector dimension of the cache
	MetaKeyDimensions = "embedding_dimensions"
	// MetaKeyModel stores the embedding model name used to fill the cache
	MetaKeyModel = "embedding_model"
	// MetaKeyLastIndexed stores the RFC 3339 time of the last completed build
	MetaKeyLastIndexed = "last_indexed"
)

// CachedEmbedding is one persisted vector. Entries are immutable once written.
type CachedEmbedding struct {
	ID             string
	Kind           Kind
	ConversationID string
	Vector         []float32
}

// EmbeddingCache is a durable id -> vector store. Put never overwrites an
// existing id, and all vectors share one dimension.
type EmbeddingCache interface {
	// Get returns the vector for id, or ok=false when it is not cached.
	Get(ctx context.Context, id string) (vec []float32, ok bool, err error)

	// Put persists a single entry. Returns false if the id was already present
	// (the new vector is dropped).
	Put(ctx context.Context, e CachedEmbedding) (bool, error)

	// PutBatch persists entries in one transaction and returns how many were new.
	PutBatch(ctx context.Context, entries []CachedEmbedding) (int, error)

	// All returns every entry in insertion order.
	All(ctx context.Context) ([]CachedEmbedding, error)

	// ContainsIDs returns the set of cached ids.
	ContainsIDs(ctx context.Context) (map[string]struct{}, error)

	// Dimensions returns the fixed dimension, or 0 while the cache is empty.
	Dimensions() int

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)
}

// Hit is a single similarity match.
type Hit struct {
	ID             string
	Kind           Kind
	ConversationID string
	// Score is cosine similarity in [-1, 1].
	Score float32
	// Position is the entry's insertion position in the index.
	Position int
}

// SimilarityIndex answers top-k cosine queries over a fixed set of vectors.
// Results are ordered by descending score; equal scores keep insertion order.
type SimilarityIndex interface {
	TopK(query []float32, k int) ([]Hit, error)
	Len() int
	Dimensions() int
	IDs() []string
}
