package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// UntitledTitle is used for conversations exported without a title.
const UntitledTitle = "Untitled"

// exportConversation mirrors one element of an exported conversations.json.
type exportConversation struct {
	ID             string                `json:"id"`
	ConversationID string                `json:"conversation_id"`
	Title          *string               `json:"title"`
	CreateTime     *float64              `json:"create_time"`
	UpdateTime     *float64              `json:"update_time"`
	Mapping        map[string]exportNode `json:"mapping"`
	CurrentNode    string                `json:"current_node"`
}

type exportNode struct {
	ID       string         `json:"id"`
	Message  *exportMessage `json:"message"`
	Parent   *string        `json:"parent"`
	Children []string       `json:"children"`
}

type exportMessage struct {
	ID     string `json:"id"`
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64 `json:"create_time"`
	Content    struct {
		ContentType string            `json:"content_type"`
		Parts       []json.RawMessage `json:"parts"`
		Text        string            `json:"text"`
	} `json:"content"`
	Metadata struct {
		ModelSlug string `json:"model_slug"`
	} `json:"metadata"`
}

// LoadFile reads and parses an exported conversations.json.
func LoadFile(path string) ([]Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lenserrors.New(lenserrors.ErrCodeFileNotFound,
				fmt.Sprintf("conversations file not found: %s", path), err).
				WithSuggestion("Export your chat history and import the zip with 'chatlens import'")
		}
		return nil, lenserrors.New(lenserrors.ErrCodeStorageRead,
			fmt.Sprintf("failed to read %s", path), err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes an exported archive. Conversations are returned newest
// first. Messages follow the active branch of each conversation tree,
// oldest first; system messages and messages without text are dropped.
func Parse(r io.Reader) ([]Conversation, error) {
	var raw []exportConversation
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, lenserrors.New(lenserrors.ErrCodeArchiveInvalid, "failed to parse conversations", err)
	}

	conversations := make([]Conversation, 0, len(raw))
	for i := range raw {
		c := convert(&raw[i])
		if c.ID == "" {
			continue
		}
		conversations = append(conversations, c)
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].Created.After(conversations[j].Created)
	})

	return conversations, nil
}

func convert(raw *exportConversation) Conversation {
	c := Conversation{
		ID:      raw.ID,
		Title:   UntitledTitle,
		Created: fromUnix(raw.CreateTime),
		Updated: fromUnix(raw.UpdateTime),
	}
	if c.ID == "" {
		c.ID = raw.ConversationID
	}
	if raw.Title != nil && strings.TrimSpace(*raw.Title) != "" {
		c.Title = *raw.Title
	}

	for _, node := range activeBranch(raw) {
		m := node.Message
		if m == nil || m.Author.Role == RoleSystem {
			continue
		}
		text := messageText(m)
		if strings.TrimSpace(text) == "" {
			continue
		}

		id := m.ID
		if id == "" {
			id = node.ID
		}
		created := fromUnix(m.CreateTime)
		if created.IsZero() {
			created = c.Created
		}

		c.Messages = append(c.Messages, Message{
			ID:      id,
			Role:    m.Author.Role,
			Text:    text,
			Created: created,
			Model:   m.Metadata.ModelSlug,
		})
	}

	return c
}

// activeBranch returns the nodes from the root to current_node. Without a
// current_node the first child is followed from the root.
func activeBranch(raw *exportConversation) []exportNode {
	if len(raw.Mapping) == 0 {
		return nil
	}

	if node, ok := raw.Mapping[raw.CurrentNode]; ok {
		var path []exportNode
		seen := make(map[string]bool, len(raw.Mapping))
		for {
			if seen[node.ID] {
				break // cycle in a malformed export
			}
			seen[node.ID] = true
			path = append(path, node)
			if node.Parent == nil {
				break
			}
			parent, ok := raw.Mapping[*node.Parent]
			if !ok {
				break
			}
			node = parent
		}
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
		return path
	}

	var root *exportNode
	ids := make([]string, 0, len(raw.Mapping))
	for id := range raw.Mapping {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n := raw.Mapping[id]
		if n.Parent == nil {
			root = &n
			break
		}
	}
	if root == nil {
		return nil
	}

	var path []exportNode
	seen := make(map[string]bool)
	node := *root
	for !seen[node.ID] {
		seen[node.ID] = true
		path = append(path, node)
		if len(node.Children) == 0 {
			break
		}
		next, ok := raw.Mapping[node.Children[0]]
		if !ok {
			break
		}
		node = next
	}
	return path
}

// messageText joins the textual parts of a message. Non-string parts
// (images, attachments) are ignored.
func messageText(m *exportMessage) string {
	if m.Content.Text != "" && len(m.Content.Parts) == 0 {
		return m.Content.Text
	}

	var parts []string
	for _, p := range m.Content.Parts {
		var s string
		if err := json.Unmarshal(p, &s); err == nil && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

func fromUnix(ts *float64) time.Time {
	if ts == nil || *ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(*ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
