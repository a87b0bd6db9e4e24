package lifecycle

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/chatlens/internal/ui"
)

// Confirm asks a yes/no question on w and reads the answer from r. An
// empty answer picks the default; unreadable input counts as no.
func Confirm(w io.Writer, r io.Reader, question string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	_, _ = fmt.Fprintf(w, "%s %s ", question, hint)

	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && input == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	default:
		return false
	}
}

// PullProgressPrinter returns a progress callback that redraws one status
// line on w.
func PullProgressPrinter(w io.Writer) func(PullProgress) {
	const width = 30
	lastStatus := ""

	return func(p PullProgress) {
		if p.Total <= 0 {
			if p.Status != lastStatus {
				lastStatus = p.Status
				_, _ = fmt.Fprintf(w, "\r%s...", p.Status)
			}
			return
		}
		filled := min(int(p.Percent/100*width), width)
		bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
		_, _ = fmt.Fprintf(w, "\r[%s] %3.0f%% %s/%s", bar, p.Percent,
			ui.FormatBytes(p.Completed), ui.FormatBytes(p.Total))
	}
}
