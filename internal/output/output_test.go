package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/store"
)

func TestWriter_Status_PrintsIconAndMessage(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a status message
	w.Status("🔍", "Loading conversations...")

	// Then: output contains icon and message
	assert.Equal(t, "🔍 Loading conversations...\n", buf.String())
}

func TestWriter_Status_NoIconIndents(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Status("", "detail")

	assert.Equal(t, "   detail\n", buf.String())
}

func TestWriter_Icons(t *testing.T) {
	buf := &bytes.Buffer{}
	w := New(buf)

	w.Successf("Imported %d conversations", 3)
	w.Warningf("provider %s unreachable", "ollama")
	w.Errorf("failed: %v", "boom")

	out := buf.String()
	assert.Contains(t, out, "✅ Imported 3 conversations")
	assert.Contains(t, out, "⚠️  provider ollama unreachable")
	assert.Contains(t, out, "❌ failed: boom")
}

func TestWriter_Code_IndentsEachLine(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Code("chatlens index\nchatlens serve")

	assert.Equal(t, "\n  chatlens index\n  chatlens serve\n\n", buf.String())
}

func TestWriter_Newline(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Newline()

	assert.Equal(t, "\n", buf.String())
}

func TestWriter_Results_Empty(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Results("tokyo", nil)

	assert.Equal(t, "No results found for \"tokyo\"\n", buf.String())
}

func TestWriter_Results_ListsInOrder(t *testing.T) {
	// Given: one conversation hit and one exact message hit
	buf := &bytes.Buffer{}
	results := []search.SearchResult{
		{
			Kind: store.KindConversation, ConversationID: "conv-trip", Title: "Trip planning",
			MessageID: "msg-book", MatchedText: "Book flights\n  to Tokyo", Role: "user",
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), Score: 0.91,
		},
		{
			Kind: store.KindMessage, ConversationID: "conv-recipes", Title: "Recipes",
			MessageID: "m2", MatchedText: "Tokyo ramen", Role: "assistant",
		},
	}

	// When: printing them
	New(buf).Results("tokyo", results)

	// Then: both are numbered, scores shown only when present
	out := buf.String()
	assert.Contains(t, out, "Found 2 results for \"tokyo\"")
	assert.Contains(t, out, "1. Trip planning (0.91)")
	assert.Contains(t, out, "[conv-trip]")
	assert.Contains(t, out, "   Book flights to Tokyo\n")
	assert.Contains(t, out, "2. Recipes\n")
	assert.Contains(t, out, "message · assistant  [conv-recipes]")
	assert.Less(t, strings.Index(out, "Trip planning"), strings.Index(out, "Recipes"))
}

func TestWriter_Results_Singular(t *testing.T) {
	buf := &bytes.Buffer{}
	New(buf).Results("x", []search.SearchResult{{Kind: store.KindMessage, Title: "t"}})

	assert.Contains(t, buf.String(), "Found 1 result for \"x\"")
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"short", "hello world", 20, "hello world"},
		{"collapses whitespace", "a\n\tb   c", 20, "a b c"},
		{"truncates", "abcdefghij", 5, "abcd…"},
		{"trims before ellipsis", "abc defgh", 5, "abc…"},
		{"runes not bytes", "日本語のテキスト", 4, "日本語…"},
		{"no width", "abc", 0, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.text, tt.width))
		})
	}
}
