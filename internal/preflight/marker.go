package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MarkerFile records that the checks passed for one chatlens version.
const MarkerFile = ".preflight-passed"

// NeedsCheck returns true unless the checks already passed for version.
// Upgrading chatlens runs them again.
func NeedsCheck(dataDir, version string) bool {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return true
	}
	passedFor, _, _ := strings.Cut(string(content), " ")
	return passedFor != version
}

// MarkPassed writes the marker for version.
func MarkPassed(dataDir, version string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	content := version + " " + time.Now().Format(time.RFC3339)
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0o644)
}

// ClearMarker removes the marker, forcing a re-check on next run.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}
