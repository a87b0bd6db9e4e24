package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the user config lookup at an empty directory so a
// developer's own ~/.config/chatlens does not leak into tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, 1, cfg.Version)

	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 64, cfg.Embeddings.BatchSize)
	assert.Equal(t, 4, cfg.Embeddings.Concurrency)
	assert.Equal(t, 3, cfg.Embeddings.MaxRetries)

	assert.Equal(t, "flat", cfg.Index.Type)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 3, cfg.Search.MinQueryLength)
	assert.Equal(t, 10, cfg.Search.ExactMaxResults)

	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaultsResolvedAgainstDir(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data", "conversations.json"), cfg.Paths.ConversationsFile)
	assert.Equal(t, filepath.Join(dir, "data", "embeddings.db"), cfg.CachePath())
	assert.Equal(t, filepath.Join(dir, "data", ".build.lock"), cfg.LockPath())
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	yaml := `
embeddings:
  provider: static
  batch_size: 8
index:
  type: hnsw
search:
  default_limit: 5
server:
  watch: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte(yaml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 8, cfg.Embeddings.BatchSize)
	assert.Equal(t, 4, cfg.Embeddings.Concurrency, "unset fields keep defaults")
	assert.Equal(t, "hnsw", cfg.Index.Type)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.True(t, cfg.Server.Watch)
}

func TestLoad_UserConfigBelowProjectConfig(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "chatlens"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "chatlens", "config.yaml"),
		[]byte("embeddings:\n  model: user-model\n  batch_size: 16\n"), 0644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile),
		[]byte("embeddings:\n  batch_size: 32\n"), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, UserConfigExists())
	assert.Equal(t, "user-model", cfg.Embeddings.Model)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile),
		[]byte("embeddings:\n  provider: ollama\n"), 0644))

	t.Setenv("CHATLENS_EMBEDDINGS_PROVIDER", "static")
	t.Setenv("CHATLENS_CONCURRENCY", "9")
	t.Setenv("CHATLENS_BATCH_SIZE", "not-a-number")
	t.Setenv("CHATLENS_CONVERSATIONS", "/abs/conversations.json")
	t.Setenv("CHATLENS_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 9, cfg.Embeddings.Concurrency)
	assert.Equal(t, 64, cfg.Embeddings.BatchSize, "invalid numbers are ignored")
	assert.Equal(t, "/abs/conversations.json", cfg.Paths.ConversationsFile)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
}

func TestLoad_InvalidYAMLFails(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectConfigFile), []byte("embeddings: [\n"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"zero batch size", func(c *Config) { c.Embeddings.BatchSize = 0 }},
		{"zero concurrency", func(c *Config) { c.Embeddings.Concurrency = 0 }},
		{"negative retries", func(c *Config) { c.Embeddings.MaxRetries = -1 }},
		{"unknown index", func(c *Config) { c.Index.Type = "ivf" }},
		{"rescore below one", func(c *Config) { c.Index.RescoreFactor = 0 }},
		{"default above max", func(c *Config) { c.Search.DefaultLimit = 500 }},
		{"no conversations file", func(c *Config) { c.Paths.ConversationsFile = "" }},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurations_FallBackOnGarbage(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 60*time.Second, cfg.EmbeddingTimeout())
	assert.Equal(t, time.Second, cfg.WatchDebounceDuration())

	cfg.Embeddings.Timeout = "soon"
	cfg.Server.WatchDebounce = "250ms"
	assert.Equal(t, 60*time.Second, cfg.EmbeddingTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.WatchDebounceDuration())
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg := NewConfig()
	cfg.Embeddings.Provider = "static"
	cfg.Search.ExactMaxResults = 25
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectConfigFile)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "static", loaded.Embeddings.Provider)
	assert.Equal(t, 25, loaded.Search.ExactMaxResults)
}
