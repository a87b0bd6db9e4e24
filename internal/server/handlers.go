package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/chatlens/internal/conversation"
	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
	"github.com/Aman-CERP/chatlens/internal/search"
)

// gapThreshold is the pause between two messages that gets its own
// "internal" marker in the message listing.
const gapThreshold = time.Hour

// RoleInternal marks synthetic entries in the message listing.
const RoleInternal = "internal"

type conversationItem struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	MessageCount int       `json:"message_count"`
	IsFavorite   bool      `json:"is_favorite"`
}

type messageItem struct {
	ID      string     `json:"id,omitempty"`
	Role    string     `json:"role"`
	Text    string     `json:"text"`
	Created *time.Time `json:"created,omitempty"`
	Model   string     `json:"model,omitempty"`
}

type messagesResponse struct {
	ConversationID string        `json:"conversation_id"`
	Title          string        `json:"title"`
	Messages       []messageItem `json:"messages"`
}

type searchResponse struct {
	Query   string                `json:"query"`
	Results []search.SearchResult `json:"results"`
	Total   int                   `json:"total"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	favorites := map[string]bool{}
	if s.favorites != nil {
		var err error
		if favorites, err = s.favorites.All(r.Context()); err != nil {
			writeError(w, err)
			return
		}
	}

	convs := s.engine.Conversations().Conversations()
	items := make([]conversationItem, len(convs))
	for i, c := range convs {
		items[i] = conversationItem{
			ID:           c.ID,
			Title:        c.Title,
			Created:      c.Created,
			Updated:      c.Updated,
			MessageCount: len(c.Messages),
			IsFavorite:   favorites[c.ID],
		}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, ok := s.engine.Conversations().Get(id)
	if !ok {
		writeError(w, conversationNotFound(id))
		return
	}

	writeJSON(w, http.StatusOK, messagesResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Messages:       listMessages(conv.Messages),
	})
}

// listMessages renders messages in order, inserting an internal entry
// wherever an hour or more passed between two timestamped messages.
func listMessages(messages []conversation.Message) []messageItem {
	items := make([]messageItem, 0, len(messages))
	var prev time.Time
	for _, m := range messages {
		if !prev.IsZero() && !m.Created.IsZero() {
			if gap := m.Created.Sub(prev); gap >= gapThreshold {
				items = append(items, messageItem{
					Role: RoleInternal,
					Text: humanDuration(gap) + " passed",
				})
			}
		}

		item := messageItem{ID: m.ID, Role: m.Role, Text: m.Text, Model: m.Model}
		if !m.Created.IsZero() {
			created := m.Created
			item.Created = &created
			prev = m.Created
		}
		items = append(items, item)
	}
	return items
}

// humanDuration renders d in its largest whole unit, e.g. "3 hours".
func humanDuration(d time.Duration) string {
	units := []struct {
		name string
		size time.Duration
	}{
		{"day", 24 * time.Hour},
		{"hour", time.Hour},
		{"minute", time.Minute},
	}
	for _, u := range units {
		if n := int(d / u.size); n >= 1 {
			if n == 1 {
				return "1 " + u.name
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return "less than a minute"
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		query = r.URL.Query().Get("q")
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, lenserrors.ValidationError("limit must be an integer", err))
			return
		}
		limit = n
	}

	results, err := s.engine.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
	})
}

func (s *Server) handleUploadZip(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.config.MaxUploadBytes {
		writeError(w, uploadError(&http.MaxBytesError{Limit: s.config.MaxUploadBytes}, s.config.MaxUploadBytes))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, uploadError(err, s.config.MaxUploadBytes))
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		writeError(w, lenserrors.New(lenserrors.ErrCodeArchiveInvalid, "upload must be a .zip file", nil).
			WithDetail("filename", header.Filename))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, uploadError(err, s.config.MaxUploadBytes))
		return
	}

	count, err := s.engine.Import(s.baseCtx, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"detail": fmt.Sprintf("loaded %d conversations", count),
		"count":  count,
	})
}

func uploadError(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return lenserrors.New(lenserrors.ErrCodeArchiveTooLarge,
			fmt.Sprintf("archive exceeds %d MB", limit>>20), err)
	}
	return lenserrors.New(lenserrors.ErrCodeArchiveInvalid, "missing or unreadable 'file' form field", err)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("conv_id")
	if id == "" {
		writeError(w, lenserrors.ValidationError("missing query parameter 'conv_id'", nil))
		return
	}
	if _, ok := s.engine.Conversations().Get(id); !ok {
		writeError(w, conversationNotFound(id))
		return
	}
	if s.favorites == nil {
		writeError(w, lenserrors.New(lenserrors.ErrCodeInternal, "favorites are not available", nil))
		return
	}

	isFavorite, err := s.favorites.Toggle(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"is_favorite":     isFavorite,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Metrics.Snapshot())
}

func conversationNotFound(id string) error {
	return lenserrors.New(lenserrors.ErrCodeConversationNotFound, "invalid conversation ID", nil).
		WithDetail("conversation_id", id)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch code := lenserrors.GetCode(err); {
	case code == lenserrors.ErrCodeConversationNotFound, code == lenserrors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case code == lenserrors.ErrCodeArchiveTooLarge:
		return http.StatusRequestEntityTooLarge
	case code == lenserrors.ErrCodeIndexNotReady, code == lenserrors.ErrCodeDimensionMismatch,
		lenserrors.IsProviderError(err):
		return http.StatusServiceUnavailable
	case code == lenserrors.ErrCodeStorageLocked:
		return http.StatusConflict
	case lenserrors.GetCategory(err) == lenserrors.CategoryValidation,
		code == lenserrors.ErrCodeArchiveInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", slog.String("error", err.Error()))
	}

	body, jerr := lenserrors.FormatJSON(err)
	if jerr != nil {
		body = []byte(`{"code":"` + lenserrors.ErrCodeInternal + `"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", slog.String("error", err.Error()))
	}
}
