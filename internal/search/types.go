// Package search answers free-text queries over the conversation archive.
// Semantic queries are embedded and ranked by the similarity index; quoted
// queries fall back to case-insensitive substring matching.
package search

import (
	"time"

	"github.com/Aman-CERP/chatlens/internal/async"
	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/embed"
	"github.com/Aman-CERP/chatlens/internal/index"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// SearchResult is one resolved hit.
type SearchResult struct {
	// Kind is "conversation" when the conversation itself matched (keyed to
	// its first message) or "message" for a single message.
	Kind store.Kind `json:"kind"`

	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`

	// MessageID is the message the result is keyed to.
	MessageID   string `json:"message_id"`
	MatchedText string `json:"matched_text"`
	Role        string `json:"role"`

	// Timestamp is the conversation's created time for conversation results
	// and the message's created time for message results.
	Timestamp time.Time `json:"timestamp"`

	// Score is the cosine similarity; 0 for exact matches.
	Score float32 `json:"score,omitempty"`
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultLimit is used when the caller passes limit <= 0 (default: 10).
	DefaultLimit int

	// MaxLimit caps the caller's limit (default: 100).
	MaxLimit int

	// MinQueryLength rejects shorter queries (default: 3).
	MinQueryLength int

	// MaxQueryLength rejects longer queries; 0 disables the check.
	MaxQueryLength int

	// ExactMaxResults caps quoted-query results (default: 10).
	ExactMaxResults int

	// QueryCacheSize is the LRU size for query embeddings; negative disables it.
	QueryCacheSize int

	// Builder tunes provider traffic during rebuilds.
	Builder index.BuilderConfig
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:    10,
		MaxLimit:        100,
		MinQueryLength:  3,
		MaxQueryLength:  2000,
		ExactMaxResults: 10,
		QueryCacheSize:  1000,
		Builder:         index.DefaultBuilderConfig(),
	}
}

// ConfigFromConfig maps the application configuration onto EngineConfig.
func ConfigFromConfig(cfg *config.Config) EngineConfig {
	ec := DefaultConfig()
	ec.DefaultLimit = cfg.Search.DefaultLimit
	ec.MaxLimit = cfg.Search.MaxLimit
	ec.MinQueryLength = cfg.Search.MinQueryLength
	ec.MaxQueryLength = cfg.Search.MaxQueryLength
	ec.ExactMaxResults = cfg.Search.ExactMaxResults
	ec.QueryCacheSize = cfg.Embeddings.QueryCacheSize

	ec.Builder.BatchSize = cfg.Embeddings.BatchSize
	ec.Builder.Concurrency = cfg.Embeddings.Concurrency
	ec.Builder.Retry.MaxRetries = cfg.Embeddings.MaxRetries

	if cfg.Index.Type == "hnsw" {
		ec.Builder.NewIndex = index.HNSWFactory(store.HNSWConfig{
			M:             cfg.Index.HNSWM,
			EfSearch:      cfg.Index.HNSWEfSearch,
			RescoreFactor: cfg.Index.RescoreFactor,
		})
	}
	return ec
}

func (c EngineConfig) withDefaults() EngineConfig {
	def := DefaultConfig()
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = def.DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = def.MaxLimit
	}
	if c.MinQueryLength <= 0 {
		c.MinQueryLength = def.MinQueryLength
	}
	if c.ExactMaxResults <= 0 {
		c.ExactMaxResults = def.ExactMaxResults
	}
	return c
}

// EngineStatus reports index readiness and the outcome of the last build.
type EngineStatus struct {
	// Ready is true once a build has produced a live index.
	Ready bool `json:"ready"`

	// Generation is the rebuild generation that produced the live index.
	Generation uint64 `json:"generation"`

	// Indexed is the number of entries in the live index.
	Indexed int `json:"indexed"`

	// Dimensions is the vector dimension of the live index.
	Dimensions int `json:"dimensions"`

	// Conversations is the size of the live conversation set.
	Conversations int `json:"conversations"`

	// Model is the embedding model name.
	Model string `json:"model"`

	// BuiltAt is when the live index was swapped in.
	BuiltAt time.Time `json:"built_at,omitzero"`

	// LastBuild is the report of the build behind the live index.
	LastBuild *index.BuildReport `json:"last_build,omitempty"`

	// QueryCache reports the in-memory query vector cache, when enabled.
	QueryCache *embed.QueryCacheStats `json:"query_cache,omitempty"`

	// Rebuilding is true while a background rebuild, including a superseded
	// one winding down, is still running.
	Rebuilding bool `json:"rebuilding"`

	// Progress describes the newest background rebuild.
	Progress async.IndexProgressSnapshot `json:"progress"`
}
