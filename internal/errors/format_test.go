package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuggestion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"own suggestion wins", New(ErrCodeProviderUnavailable, "down", nil).WithSuggestion("Start Ollama."), "Start Ollama."},
		{"standard hint by code", New(ErrCodeIndexNotReady, "not ready", nil), hints[ErrCodeIndexNotReady]},
		{"wrapped lens error", fmt.Errorf("search: %w", New(ErrCodeArchiveInvalid, "no conversations.json", nil)), hints[ErrCodeArchiveInvalid]},
		{"code without hint", New(ErrCodeInternal, "boom", nil), ""},
		{"plain error", errors.New("boom"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Suggestion(tt.err))
		})
	}
}

func TestFormatForCLI_ProviderUnavailable(t *testing.T) {
	// Given: the error raised when Ollama cannot be reached
	err := New(ErrCodeProviderUnavailable, "cannot reach ollama at http://localhost:11434", nil).
		WithDetail("model", "nomic-embed-text").
		WithDetail("host", "http://localhost:11434")

	// When: formatting for the terminal
	out := FormatForCLI(err)

	// Then: message, sorted details, the standard hint and the code appear in order
	assert.Equal(t, "Error: cannot reach ollama at http://localhost:11434\n"+
		"  host: http://localhost:11434\n"+
		"  model: nomic-embed-text\n"+
		"  Hint: "+hints[ErrCodeProviderUnavailable]+"\n"+
		"  Code: ERR_302_PROVIDER_UNAVAILABLE\n", out)
	assert.Contains(t, out, "chatlens setup")
}

func TestFormatForCLI_PlainErrorIsInternal(t *testing.T) {
	out := FormatForCLI(errors.New("unexpected EOF"))

	assert.Equal(t, "Error: unexpected EOF\n  Code: ERR_501_INTERNAL\n", out)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_ArchiveError(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := New(ErrCodeArchiveInvalid, "upload is not a ChatGPT export", cause).
		WithDetail("file", "export.zip")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, ErrCodeArchiveInvalid, body["code"])
	assert.Equal(t, "upload is not a ChatGPT export", body["message"])
	assert.Equal(t, string(CategoryStorage), body["category"])
	assert.Equal(t, false, body["retryable"])
	assert.Equal(t, hints[ErrCodeArchiveInvalid], body["suggestion"])
	assert.Equal(t, "zip: not a valid zip file", body["cause"])
	assert.Equal(t, map[string]any{"file": "export.zip"}, body["details"])
}

func TestFormatJSON_RetryableProviderError(t *testing.T) {
	data, jerr := FormatJSON(New(ErrCodeProviderRateLimited, "ollama returned 429", nil))
	require.NoError(t, jerr)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, true, body["retryable"])
	assert.NotContains(t, body, "cause")
	assert.NotContains(t, body, "details")
}

func TestFormatJSON_PlainErrorHasNoDuplicateCause(t *testing.T) {
	data, jerr := FormatJSON(errors.New("generic error"))
	require.NoError(t, jerr)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, ErrCodeInternal, body["code"])
	assert.Equal(t, "generic error", body["message"])
	assert.NotContains(t, body, "cause")
}

func TestFormatJSON_Nil(t *testing.T) {
	data, err := FormatJSON(nil)
	assert.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(string(data)))
}
