package search

import (
	"strings"

	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// ExactFinder answers quoted queries with case-insensitive substring
// matching over conversation titles and message texts. It never calls the
// embedding provider.
type ExactFinder struct {
	conversations conversation.Provider
	maxResults    int
}

// NewExactFinder creates a finder over provider returning at most
// maxResults results per query.
func NewExactFinder(provider conversation.Provider, maxResults int) *ExactFinder {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &ExactFinder{conversations: provider, maxResults: maxResults}
}

// Find returns title matches (keyed to the conversation's first message)
// and message matches in conversation order. Scanning stops once the cap
// has been reached.
func (f *ExactFinder) Find(query string) []SearchResult {
	needle := strings.ToLower(query)
	if needle == "" {
		return []SearchResult{}
	}

	results := make([]SearchResult, 0, f.maxResults)
	for _, conv := range f.conversations.Conversations() {
		if first, ok := conv.FirstMessage(); ok && strings.Contains(strings.ToLower(conv.Title), needle) {
			results = append(results, resolved(store.KindConversation, &conv, first, 0))
		}
		for _, msg := range conv.Messages {
			if len(results) >= f.maxResults {
				break
			}
			if strings.Contains(strings.ToLower(msg.Text), needle) {
				results = append(results, resolved(store.KindMessage, &conv, msg, 0))
			}
		}
		if len(results) >= f.maxResults {
			break
		}
	}

	if len(results) > f.maxResults {
		results = results[:f.maxResults]
	}
	return results
}

// resolved builds a result for msg within conv.
func resolved(kind store.Kind, conv *conversation.Conversation, msg conversation.Message, score float32) SearchResult {
	ts := msg.Created
	if kind == store.KindConversation {
		ts = conv.Created
	}
	return SearchResult{
		Kind:           kind,
		ConversationID: conv.ID,
		Title:          conv.Title,
		MessageID:      msg.ID,
		MatchedText:    msg.Text,
		Role:           msg.Role,
		Timestamp:      ts,
		Score:          score,
	}
}
