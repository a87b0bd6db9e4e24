package integration

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatlens/internal/store"
)

func TestIntegration_QueriesFromFile(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: an engine built over the fixture archive
	ctx := context.Background()
	engine := newWorkspace(t, "conversations.json").openEngine(t)
	_, err := engine.Rebuild(ctx)
	require.NoError(t, err)

	queries := loadQueries(t)

	// Then: every positive query ranks the expected conversation first
	for _, qs := range append(queries.Semantic, queries.Exact...) {
		t.Run(qs.Name, func(t *testing.T) {
			results, err := engine.Search(ctx, qs.Query, 5)
			require.NoError(t, err)
			require.NotEmpty(t, results, "query %q", qs.Query)
			assert.Equal(t, qs.Expected, results[0].ConversationID, "query %q", qs.Query)
		})
	}

	// And: negative queries find nothing
	for _, qs := range queries.Negative {
		t.Run(qs.Name, func(t *testing.T) {
			results, err := engine.Search(ctx, qs.Query, 5)
			require.NoError(t, err)
			assert.Empty(t, results, "query %q", qs.Query)
		})
	}
}

func TestIntegration_CachePersistsAcrossRestarts(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	ws := newWorkspace(t, "conversations.json")

	// Given: a first run that embeds everything
	first := ws.openEngine(t)
	report, err := first.Rebuild(ctx)
	require.NoError(t, err)
	require.Positive(t, report.Embedded)
	indexed := first.Status().Indexed
	require.NoError(t, first.Close())

	// When: a second process opens the same cache
	second := ws.openEngine(t)
	report, err = second.Rebuild(ctx)
	require.NoError(t, err)

	// Then: nothing is embedded again and the index is identical in size
	assert.Zero(t, report.Embedded)
	assert.Zero(t, report.Missing)
	assert.Equal(t, indexed, second.Status().Indexed)

	results, err := second.Search(ctx, "flights to tokyo", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "conv-trip", results[0].ConversationID)
}

func TestIntegration_LastIndexedIsRecorded(t *testing.T) {
	ctx := context.Background()
	ws := newWorkspace(t, "conversations.json")
	engine := ws.openEngine(t)

	_, err := engine.Rebuild(ctx)
	require.NoError(t, err)

	db, err := store.Open(ws.cachePath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	cache, err := store.NewSQLiteCache(db)
	require.NoError(t, err)

	ts, ok, err := cache.Meta(ctx, store.MetaKeyLastIndexed)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, ts)
}

func TestIntegration_ImportEmbedsOnlyNewMessages(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	engine := newWorkspace(t, "conversations.json").openEngine(t)

	before, err := engine.Rebuild(ctx)
	require.NoError(t, err)

	// When: an export with one more conversation is imported
	archive := zipFixture(t, "conversations_v2.json")
	n, err := engine.Import(ctx, bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, engine.Wait())

	// Then: only the new conversation's units were embedded
	status := engine.Status()
	require.NotNil(t, status.LastBuild)
	assert.Positive(t, status.LastBuild.Embedded)
	assert.LessOrEqual(t, status.LastBuild.Embedded, 3, "two messages and a title")
	assert.Equal(t, before.Units+status.LastBuild.Embedded, status.LastBuild.Units)
	assert.Equal(t, 3, status.Conversations)

	// And: the new conversation is searchable
	results, err := engine.Search(ctx, "kubernetes ingress 502", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "conv-k8s", results[0].ConversationID)

	results, err = engine.Search(ctx, `"kubernetes ingress"`, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "conv-k8s", results[0].ConversationID)
}
