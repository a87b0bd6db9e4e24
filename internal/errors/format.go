package errors

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// hints are shown for errors raised without their own suggestion.
var hints = map[string]string{
	ErrCodeConfigInvalid:       "Check .chatlens.yaml and the user config, or run 'chatlens config show'",
	ErrCodeStorageCorrupt:      "Delete embeddings.db in the data directory and run 'chatlens index'",
	ErrCodeStorageLocked:       "Another chatlens process is building the index; wait for it to finish",
	ErrCodeFileNotFound:        "Export your data from ChatGPT and run 'chatlens import <export.zip>'",
	ErrCodeArchiveInvalid:      "Use the zip from ChatGPT's data export; it must contain conversations.json",
	ErrCodeArchiveTooLarge:     "Raise server.max_upload_mb, or import the zip with 'chatlens import'",
	ErrCodeProviderTimeout:     "The model may still be loading; retry, or raise embeddings.timeout",
	ErrCodeProviderUnavailable: "Start Ollama with 'ollama serve', run 'chatlens setup', or set embeddings.provider: static",
	ErrCodeProviderRateLimited: "Lower embeddings.concurrency or embeddings.batch_size",
	ErrCodeProviderAuth:        "Check embeddings.ollama_host points at a server you can use",
	ErrCodeDimensionMismatch:   "Run 'chatlens index --reset' to re-embed with the configured model",
	ErrCodeIndexNotReady:       "Wait for the initial index build to finish, or run 'chatlens index'",
	ErrCodeInvalidQuery:        `Use a longer query, or wrap a phrase in double quotes for an exact match`,
}

// Suggestion returns err's own suggestion, or the standard hint for its
// code. Errors outside the taxonomy have none.
func Suggestion(err error) string {
	le, ok := as(err)
	if !ok {
		return ""
	}
	if le.Suggestion != "" {
		return le.Suggestion
	}
	return hints[le.Code]
}

// FormatForCLI renders err for the terminal: the message, its details in
// key order, a hint and the code.
//
//	Error: embedding cache was built with model "a", configured model is "b"
//	  model: b
//	  Hint: Run 'chatlens index --reset' to re-embed, or configure the original model
//	  Code: ERR_102_CONFIG_INVALID
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	le, ok := as(err)
	if !ok {
		le = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", le.Message)
	for _, k := range slices.Sorted(maps.Keys(le.Details)) {
		fmt.Fprintf(&sb, "  %s: %s\n", k, le.Details[k])
	}
	if hint := Suggestion(le); hint != "" {
		fmt.Fprintf(&sb, "  Hint: %s\n", hint)
	}
	fmt.Fprintf(&sb, "  Code: %s\n", le.Code)
	return sb.String()
}

// apiError is the error body of the HTTP API.
type apiError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Retryable  bool              `json:"retryable"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
}

// FormatJSON renders err as an HTTP API error body. Errors outside the
// taxonomy are reported as internal errors.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	le, ok := as(err)
	if !ok {
		le = Wrap(ErrCodeInternal, err)
	}

	body := apiError{
		Code:       le.Code,
		Message:    le.Message,
		Category:   string(le.Category),
		Retryable:  le.Retryable,
		Details:    le.Details,
		Suggestion: Suggestion(le),
	}
	// A wrapped standard error already carries its text as the message.
	if le.Cause != nil && le.Cause.Error() != le.Message {
		body.Cause = le.Cause.Error()
	}
	return json.Marshal(body)
}
