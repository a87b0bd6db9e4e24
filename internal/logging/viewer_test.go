package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	infoLine  = `{"time":"2026-01-02T10:00:00.5Z","level":"INFO","msg":"index_swapped","indexed":42,"generation":3}`
	errorLine = `{"time":"2026-01-02T10:00:01Z","level":"ERROR","msg":"conversations_reload_failed","error":"bad json"}`
	debugLine = `{"time":"2026-01-02T10:00:02Z","level":"DEBUG","msg":"search_complete","results":2}`
)

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestParseLine_ValidJSON(t *testing.T) {
	entry := ParseLine(infoLine)

	assert.True(t, entry.IsValid)
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "index_swapped", entry.Msg)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 500_000_000, time.UTC), entry.Time)
	assert.Equal(t, map[string]any{"indexed": float64(42), "generation": float64(3)}, entry.Attrs)
}

func TestParseLine_InvalidJSON(t *testing.T) {
	entry := ParseLine("panic: runtime error")

	assert.False(t, entry.IsValid)
	assert.Equal(t, "panic: runtime error", entry.Raw)
}

func TestViewer_FormatEntry_SortsAttrs(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, &bytes.Buffer{})

	got := v.FormatEntry(ParseLine(infoLine))

	assert.Equal(t, "10:00:00.500 INFO  index_swapped generation=3 indexed=42", got)
}

func TestViewer_FormatEntry_ColorsLevel(t *testing.T) {
	v := NewViewer(ViewerConfig{}, &bytes.Buffer{})

	assert.Contains(t, v.FormatEntry(ParseLine(errorLine)), "\033[31mERROR\033[0m")
}

func TestViewer_Tail(t *testing.T) {
	path := writeLog(t, infoLine, errorLine, debugLine, "not json")

	tests := []struct {
		name  string
		cfg   ViewerConfig
		n     int
		wants []string
	}{
		{"last two", ViewerConfig{}, 2, []string{"search_complete", "not json"}},
		{"level filter", ViewerConfig{Level: "warn"}, 10, []string{"conversations_reload_failed", "not json"}},
		{"pattern filter", ViewerConfig{Pattern: regexp.MustCompile(`index_`)}, 10, []string{"index_swapped"}},
		{"zero lines", ViewerConfig{}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewViewer(tt.cfg, &bytes.Buffer{}).Tail(path, tt.n)
			require.NoError(t, err)

			var got []string
			for _, e := range entries {
				if e.IsValid {
					got = append(got, e.Msg)
				} else {
					got = append(got, e.Raw)
				}
			}
			assert.Equal(t, tt.wants, got)
		})
	}
}

func TestViewer_Tail_MissingFile(t *testing.T) {
	_, err := NewViewer(ViewerConfig{}, &bytes.Buffer{}).Tail(filepath.Join(t.TempDir(), "none.log"), 10)
	assert.Error(t, err)
}

func TestViewer_Print(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(ViewerConfig{NoColor: true}, &buf)

	v.Print([]LogEntry{ParseLine(errorLine), ParseLine("raw")})

	assert.Equal(t, "10:00:01.000 ERROR conversations_reload_failed error=bad json\nraw\n", buf.String())
}

func TestViewer_Follow_OnlyNewLines(t *testing.T) {
	path := writeLog(t, infoLine)
	v := NewViewer(ViewerConfig{Level: "error"}, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := make(chan LogEntry, 4)
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path, entries) }()

	time.Sleep(150 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(debugLine + "\n" + errorLine + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case entry := <-entries:
		assert.Equal(t, "conversations_reload_failed", entry.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no entry followed")
	}

	cancel()
	require.NoError(t, <-done)
}
