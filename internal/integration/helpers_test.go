// Package integration exercises the conversation loader, embedding cache,
// index builder and search engine together, the way the commands wire
// them.
package integration

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/embed"
	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// QuerySpec is one query with the conversation expected on top.
type QuerySpec struct {
	Name     string `yaml:"name"`
	Query    string `yaml:"query"`
	Expected string `yaml:"expected"`
}

// QueryConfig holds the queries of testdata/queries.yaml.
type QueryConfig struct {
	Semantic []QuerySpec `yaml:"semantic"`
	Exact    []QuerySpec `yaml:"exact"`
	Negative []QuerySpec `yaml:"negative"`
}

func loadQueries(t *testing.T) QueryConfig {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "queries.yaml"))
	require.NoError(t, err)

	var cfg QueryConfig
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	require.NotEmpty(t, cfg.Semantic)
	return cfg
}

// workspace is an on-disk conversations file and embedding cache.
type workspace struct {
	dir               string
	conversationsFile string
	cachePath         string
}

func newWorkspace(t *testing.T, fixture string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:               dir,
		conversationsFile: filepath.Join(dir, "conversations.json"),
		cachePath:         filepath.Join(dir, "data", "embeddings.db"),
	}
	copyFixture(t, fixture, ws.conversationsFile)
	return ws
}

func copyFixture(t *testing.T, fixture, dest string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", fixture))
	require.NoError(t, err)
	tmp := dest + ".tmp"
	require.NoError(t, os.WriteFile(tmp, data, 0o644))
	require.NoError(t, os.Rename(tmp, dest))
}

// openEngine opens the workspace cache and an engine over the current
// conversations file. Everything is closed at test cleanup.
func (ws workspace) openEngine(t *testing.T) *search.Engine {
	t.Helper()

	convs, err := conversation.LoadFile(ws.conversationsFile)
	require.NoError(t, err)

	db, err := store.Open(ws.cachePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cache, err := store.NewSQLiteCache(db)
	require.NoError(t, err)

	engine, err := search.NewEngine(
		conversation.NewLive(conversation.NewSet(convs)),
		cache,
		embed.NewStaticEmbedder(0),
		search.DefaultConfig(),
		search.WithConversationsFile(ws.conversationsFile),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

// zipFixture returns a ChatGPT-style export archive holding fixture as
// conversations.json.
func zipFixture(t *testing.T, fixture string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", fixture))
	require.NoError(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string][]byte{
		"chat.html":          []byte("<html></html>"),
		"conversations.json": data,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
