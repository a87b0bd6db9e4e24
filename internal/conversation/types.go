// Package conversation loads an exported chat archive and serves it as a
// read-only, swappable conversation set.
package conversation

import (
	"sync/atomic"
	"time"
)

// Role values found in exported archives.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is a single turn of a conversation.
type Message struct {
	ID      string    `json:"id"`
	Role    string    `json:"role"`
	Text    string    `json:"text"`
	Created time.Time `json:"created"`
	Model   string    `json:"model,omitempty"`
}

// Conversation is an ordered sequence of messages with a title.
type Conversation struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	Messages []Message `json:"messages"`
}

// FirstMessage returns the opening message, if any.
func (c *Conversation) FirstMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[0], true
}

// Message returns the message with the given id.
func (c *Conversation) Message(id string) (Message, bool) {
	for _, m := range c.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Provider exposes the current conversation set. Callers must not mutate
// the returned values.
type Provider interface {
	// Conversations returns all conversations, newest first.
	Conversations() []Conversation
	// Get returns the conversation with the given id.
	Get(id string) (*Conversation, bool)
}

// Set is an immutable, indexed conversation collection.
type Set struct {
	items []Conversation
	byID  map[string]int
}

// NewSet indexes conversations by id. On duplicate ids the first wins.
func NewSet(conversations []Conversation) *Set {
	s := &Set{
		items: conversations,
		byID:  make(map[string]int, len(conversations)),
	}
	for i, c := range conversations {
		if _, dup := s.byID[c.ID]; !dup {
			s.byID[c.ID] = i
		}
	}
	return s
}

// Conversations implements Provider.
func (s *Set) Conversations() []Conversation {
	return s.items
}

// Get implements Provider.
func (s *Set) Get(id string) (*Conversation, bool) {
	i, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	return &s.items[i], true
}

// Len returns the number of conversations.
func (s *Set) Len() int {
	return len(s.items)
}

// Live is a Provider whose underlying Set can be replaced atomically when a
// new archive is imported. Readers always see a complete Set.
type Live struct {
	current atomic.Pointer[Set]
}

// NewLive returns a Live provider serving set.
func NewLive(set *Set) *Live {
	l := &Live{}
	if set == nil {
		set = NewSet(nil)
	}
	l.current.Store(set)
	return l
}

// Replace swaps in a new conversation set.
func (l *Live) Replace(set *Set) {
	l.current.Store(set)
}

// Snapshot returns the Set currently being served.
func (l *Live) Snapshot() *Set {
	return l.current.Load()
}

// Conversations implements Provider.
func (l *Live) Conversations() []Conversation {
	return l.current.Load().Conversations()
}

// Get implements Provider.
func (l *Live) Get(id string) (*Conversation, bool) {
	return l.current.Load().Get(id)
}
