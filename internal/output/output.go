// Package output provides consistent CLI output formatting for chatlens
// commands that print a single answer rather than live progress.
package output

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// snippetWidth bounds matched text in result listings.
const snippetWidth = 160

// Writer provides formatted output for CLI.
type Writer struct {
	out io.Writer
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Results prints search results in ranking order.
func (w *Writer) Results(query string, results []search.SearchResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintf(w.out, "No results found for %q\n", query)
		return
	}

	noun := "results"
	if len(results) == 1 {
		noun = "result"
	}
	_, _ = fmt.Fprintf(w.out, "Found %d %s for %q\n\n", len(results), noun, query)

	for i, r := range results {
		header := fmt.Sprintf("%d. %s", i+1, r.Title)
		if r.Score > 0 {
			header += fmt.Sprintf(" (%.2f)", r.Score)
		}
		_, _ = fmt.Fprintln(w.out, header)

		meta := []string{string(r.Kind)}
		if r.Role != "" && r.Kind == store.KindMessage {
			meta = append(meta, r.Role)
		}
		if !r.Timestamp.IsZero() {
			meta = append(meta, r.Timestamp.Local().Format(time.DateTime))
		}
		_, _ = fmt.Fprintf(w.out, "   %s  [%s]\n", strings.Join(meta, " · "), r.ConversationID)

		if snippet := Snippet(r.MatchedText, snippetWidth); snippet != "" {
			_, _ = fmt.Fprintf(w.out, "   %s\n", snippet)
		}
		if i < len(results)-1 {
			_, _ = fmt.Fprintln(w.out)
		}
	}
}

// Snippet collapses whitespace in text and truncates it to width runes,
// marking the cut with an ellipsis.
func Snippet(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if width <= 0 || utf8.RuneCountInString(text) <= width {
		return text
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:width-1]), " ") + "…"
}
