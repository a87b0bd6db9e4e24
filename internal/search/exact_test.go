package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/store"
)

var (
	convCreated = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	msgCreated  = time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)
)

func tripSet() *conversation.Set {
	return conversation.NewSet([]conversation.Conversation{
		{
			ID:      "conv-trip",
			Title:   "Trip planning",
			Created: convCreated,
			Messages: []conversation.Message{
				{ID: "msg-book", Role: conversation.RoleUser, Text: "Book flights to Tokyo", Created: msgCreated},
				{ID: "msg-options", Role: conversation.RoleAssistant, Text: "Sure, here are options", Created: msgCreated.Add(time.Minute)},
			},
		},
		{
			ID:      "conv-recipes",
			Title:   "Tokyo ramen recipes",
			Created: convCreated.Add(-time.Hour),
			Messages: []conversation.Message{
				{ID: "msg-soup", Role: conversation.RoleUser, Text: "How do I make miso soup?", Created: msgCreated},
			},
		},
	})
}

func TestExactFinder_FindsTitlesAndMessages(t *testing.T) {
	f := NewExactFinder(tripSet(), 10)

	results := f.Find("tokyo")

	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{
		Kind:           store.KindMessage,
		ConversationID: "conv-trip",
		Title:          "Trip planning",
		MessageID:      "msg-book",
		MatchedText:    "Book flights to Tokyo",
		Role:           conversation.RoleUser,
		Timestamp:      msgCreated,
	}, results[0])

	// A title match is keyed to the conversation's first message and
	// carries the conversation's timestamp.
	assert.Equal(t, store.KindConversation, results[1].Kind)
	assert.Equal(t, "conv-recipes", results[1].ConversationID)
	assert.Equal(t, "msg-soup", results[1].MessageID)
	assert.Equal(t, convCreated.Add(-time.Hour), results[1].Timestamp)
}

func TestExactFinder_CaseInsensitive(t *testing.T) {
	f := NewExactFinder(tripSet(), 10)

	assert.Len(t, f.Find("MISO SOUP"), 1)
	assert.Empty(t, f.Find("sushi"))
	assert.Empty(t, f.Find(""))
}

func TestExactFinder_StopsAtCap(t *testing.T) {
	convs := make([]conversation.Conversation, 0, 20)
	for i := range 20 {
		convs = append(convs, conversation.Conversation{
			ID:    fmt.Sprintf("c%d", i),
			Title: "weekly sync",
			Messages: []conversation.Message{
				{ID: fmt.Sprintf("m%d-a", i), Text: "sync notes"},
				{ID: fmt.Sprintf("m%d-b", i), Text: "more sync notes"},
			},
		})
	}
	f := NewExactFinder(conversation.NewSet(convs), 5)

	results := f.Find("sync")

	require.Len(t, results, 5)
	assert.Equal(t, "c0", results[0].ConversationID)
	assert.Equal(t, "c1", results[4].ConversationID)
}

func TestExactFinder_DefaultCap(t *testing.T) {
	f := NewExactFinder(tripSet(), 0)
	assert.Equal(t, 10, f.maxResults)
}
