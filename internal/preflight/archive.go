package preflight

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/Aman-CERP/chatlens/internal/conversation"
)

// CheckConversationsFile checks that the conversations file exists and
// parses. A missing file is only a warning: it can still be imported.
func (c *Checker) CheckConversationsFile() CheckResult {
	result := CheckResult{Name: "conversations_file", Required: true}

	convs, err := conversation.LoadFile(c.conversationsFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		result.Status = StatusWarn
		result.Message = "not found: " + c.conversationsFile
		result.Details = "Run 'chatlens import <export.zip>' to install one"
		return result
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot be read: %v", err)
		result.Details = "Re-export the archive or re-run 'chatlens import'"
		return result
	}

	messages := 0
	for _, conv := range convs {
		messages += len(conv.Messages)
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d conversations, %d messages", len(convs), messages)
	return result
}
