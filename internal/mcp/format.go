package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// snippetRunes bounds the matched text shown per search result.
const snippetRunes = 400

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, results []search.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for %q\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r search.SearchResult) {
	fmt.Fprintf(sb, "### %d. %s", num, r.Title)
	if r.Score > 0 {
		fmt.Fprintf(sb, " (score: %.2f)", r.Score)
	}
	sb.WriteString("\n")

	what := "message"
	if r.Kind == store.KindConversation {
		what = "conversation"
	}
	fmt.Fprintf(sb, "**Matched:** %s `%s` in `%s`", what, r.MessageID, r.ConversationID)
	if r.Role != "" {
		fmt.Fprintf(sb, " (%s)", r.Role)
	}
	if !r.Timestamp.IsZero() {
		fmt.Fprintf(sb, ", %s", r.Timestamp.UTC().Format("2006-01-02 15:04"))
	}
	sb.WriteString("\n\n")

	quote(sb, truncate(r.MatchedText, snippetRunes))
	sb.WriteString("\n")
}

// FormatConversation renders a whole conversation as markdown.
func FormatConversation(c *conversation.Conversation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", c.Title)
	if !c.Created.IsZero() {
		fmt.Fprintf(&sb, "_Started %s_\n\n", c.Created.UTC().Format("2006-01-02 15:04"))
	}
	for _, m := range c.Messages {
		fmt.Fprintf(&sb, "**%s:**\n\n%s\n\n", m.Role, m.Text)
	}
	return sb.String()
}

func quote(sb *strings.Builder, text string) {
	for line := range strings.SplitSeq(text, "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

// truncate cuts s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
