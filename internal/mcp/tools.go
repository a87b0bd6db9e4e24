package mcp

import (
	"time"

	"github.com/Aman-CERP/chatlens/internal/search"
)

// SearchInput defines the input schema for the search_conversations tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the search query; wrap it in double quotes for an exact, case-insensitive match"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SearchOutput defines the output schema for the search_conversations tool.
type SearchOutput struct {
	Results []search.SearchResult `json:"results" jsonschema:"matching conversations and messages, best first"`
}

// GetConversationInput defines the input schema for the get_conversation tool.
type GetConversationInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"the id returned in a search result"`
}

// ConversationOutput defines the output schema for the get_conversation tool.
type ConversationOutput struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Created  time.Time       `json:"created"`
	Messages []MessageOutput `json:"messages"`
}

// MessageOutput is one message of a conversation.
type MessageOutput struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Ready         bool              `json:"ready"`
	Conversations int               `json:"conversations"`
	Indexed       int               `json:"indexed"`
	Dimensions    int               `json:"dimensions"`
	Model         string            `json:"model"`
	LastIndexed   string            `json:"last_indexed,omitempty"`
	Indexing      *IndexingProgress `json:"indexing,omitempty"` // Present while a rebuild runs
}

// IndexingProgress contains information about an ongoing rebuild.
type IndexingProgress struct {
	Stage          string  `json:"stage"`
	UnitsMissing   int     `json:"units_missing"`
	UnitsEmbedded  int     `json:"units_embedded"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
}
