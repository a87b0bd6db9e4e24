// Package index reconciles the conversation set against the embedding cache
// and builds the similarity index.
package index

import (
	"strings"

	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// EmbeddableUnit is one piece of text that gets its own embedding: a
// conversation (represented by its opening message) or a single message.
type EmbeddableUnit struct {
	ID             string
	Kind           store.Kind
	ConversationID string
	Text           string
}

// Flatten derives the embeddable units of a conversation set, in order: for
// each conversation, one unit per message followed by the conversation's own
// unit. The conversation unit repeats its opening message's text, so on a
// score tie the message, built first, ranks ahead of it.
//
// Units with blank text are skipped and counted. Ids are identities, not
// content hashes; if an id repeats, the first unit wins.
func Flatten(conversations []conversation.Conversation) (units []EmbeddableUnit, skipped int) {
	seen := make(map[string]struct{})
	add := func(u EmbeddableUnit) {
		if strings.TrimSpace(u.Text) == "" {
			skipped++
			return
		}
		if _, dup := seen[u.ID]; dup {
			return
		}
		seen[u.ID] = struct{}{}
		units = append(units, u)
	}

	for i := range conversations {
		c := &conversations[i]
		first, ok := c.FirstMessage()
		if !ok {
			continue
		}

		for _, m := range c.Messages {
			add(EmbeddableUnit{
				ID:             m.ID,
				Kind:           store.KindMessage,
				ConversationID: c.ID,
				Text:           m.Text,
			})
		}

		add(EmbeddableUnit{
			ID:             c.ID,
			Kind:           store.KindConversation,
			ConversationID: c.ID,
			Text:           first.Text,
		})
	}

	return units, skipped
}
