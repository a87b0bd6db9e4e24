package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	if !strings.Contains(path, ".chatlens") || filepath.Base(path) != "server.log" {
		t.Errorf("DefaultLogPath should be .chatlens/logs/server.log, got: %s", path)
	}
	if filepath.Dir(path) != DefaultLogDir() {
		t.Errorf("DefaultLogPath should live in DefaultLogDir, got: %s", path)
	}
}

func TestDebugConfig(t *testing.T) {
	cfg := DebugConfig()
	if cfg.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Level)
	}
	if cfg.MaxSizeMB != 10 || cfg.MaxFiles != 5 {
		t.Errorf("unexpected rotation defaults: %+v", cfg)
	}
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "nested", "test.log")

	logger, cleanup, err := Setup(Config{
		Level:     "debug",
		FilePath:  logPath,
		MaxSizeMB: 1,
		MaxFiles:  3,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	logger.Info("index_build_complete", slog.Int("embedded", 42))
	logger.Debug("batch_embedded", slog.Int("batch", 1))
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), data)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "index_build_complete" || entry["embedded"] != float64(42) {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "info.log")

	logger, cleanup, err := Setup(Config{Level: "info", FilePath: logPath, MaxSizeMB: 1, MaxFiles: 1})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	logger.Debug("hidden")
	logger.Warn("shown")
	cleanup()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "hidden") {
		t.Error("debug entry should be filtered at info level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn entry should be written")
	}
}

func TestSetup_NoFileUsesStderr(t *testing.T) {
	logger, cleanup, err := Setup(Config{Level: "info"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	defer cleanup()

	if logger == nil {
		t.Error("Setup returned nil logger")
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := LevelFromString(tt.input); got != tt.expected {
				t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFindLogFile_ExplicitPath(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "custom.log")

	if _, err := FindLogFile(logPath); err == nil {
		t.Error("expected error for missing explicit file")
	}

	if err := os.WriteFile(logPath, []byte("{}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err := FindLogFile(logPath)
	if err != nil || found != logPath {
		t.Errorf("FindLogFile(%q) = %q, %v", logPath, found, err)
	}
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", filepath.Base(path), err)
	}
	return string(data)
}

func TestRotatingWriter_RotatesIntoNumberedArchives(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(logPath, 1, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.maxSize = 100

	for _, line := range []string{"first", "second", "third", "fourth"} {
		if _, err := w.Write([]byte(strings.Repeat(line[:1], 79) + "\n")); err != nil {
			t.Fatalf("write %s: %v", line, err)
		}
	}

	if got := readLog(t, logPath); !strings.HasPrefix(got, "f") || len(got) != 80 {
		t.Errorf("current log should hold only the fourth line, got %q", got)
	}
	if got := readLog(t, logPath+".1"); !strings.HasPrefix(got, "t") {
		t.Errorf("newest archive should hold the third line, got %q", got)
	}
	if got := readLog(t, logPath+".2"); !strings.HasPrefix(got, "s") {
		t.Errorf("oldest archive should hold the second line, got %q", got)
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("archives beyond keep should be dropped")
	}
}

func TestRotatingWriter_KeepZeroDiscardsOldLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(logPath, 1, 0)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()
	w.maxSize = 10

	_, _ = w.Write([]byte("old entry\n"))
	_, _ = w.Write([]byte("new entry\n"))

	if got := readLog(t, logPath); got != "new entry\n" {
		t.Errorf("got %q", got)
	}
	if _, err := os.Stat(logPath + ".1"); !os.IsNotExist(err) {
		t.Error("keep 0 should not leave archives")
	}
}

func TestRotatingWriter_FollowsRotationByAnotherProcess(t *testing.T) {
	// serve and mcp append to the same server.log
	logPath := filepath.Join(t.TempDir(), "server.log")
	serve, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer serve.Close()
	mcp, err := NewRotatingWriter(logPath, 1, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer mcp.Close()
	serve.maxSize, mcp.maxSize = 100, 100

	line := func(c string) []byte { return []byte(strings.Repeat(c, 59) + "\n") }
	_, _ = serve.Write(line("a"))
	_, _ = mcp.Write(line("b"))
	_, _ = serve.Write(line("c")) // rotates a+b into .1
	_, _ = mcp.Write(line("d"))   // sees the rotation and reopens

	if got := readLog(t, logPath); got != string(line("c"))+string(line("d")) {
		t.Errorf("current log should hold c and d, got %q", got)
	}
	if got := readLog(t, logPath+".1"); got != string(line("a"))+string(line("b")) {
		t.Errorf("archive should hold a and b, got %q", got)
	}
	if _, err := os.Stat(logPath + ".2"); !os.IsNotExist(err) {
		t.Error("the second writer should not rotate again")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 1, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if _, err := w.Write([]byte("late\n")); err == nil {
		t.Error("write after close should fail")
	}
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "concurrent.log")

	w, err := NewRotatingWriter(logPath, 10, 3)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				_, _ = fmt.Fprintf(w, `{"msg":"search_completed","worker":%d,"n":%d}`+"\n", i, j)
			}
		}()
	}
	wg.Wait()

	if err := w.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if got := strings.Count(readLog(t, logPath), "\n"); got != 1000 {
		t.Errorf("expected 1000 lines, got %d", got)
	}
}
