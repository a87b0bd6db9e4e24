package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/chatlens/internal/async"
	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/embed"
	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
	"github.com/Aman-CERP/chatlens/internal/index"
	"github.com/Aman-CERP/chatlens/internal/store"
	"github.com/Aman-CERP/chatlens/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// snapshot is one immutable build result. Queries load it once and use it
// to completion, so a swap never affects a query in flight.
type snapshot struct {
	index      store.SimilarityIndex
	report     *index.BuildReport
	generation uint64
	builtAt    time.Time
}

// Engine owns the embedding cache handle, the live conversation set and
// the current index snapshot. It is constructed once per process and
// shared by the CLI, HTTP and MCP layers.
type Engine struct {
	conversations *conversation.Live
	cache         store.EmbeddingCache
	embedder      embed.Embedder
	queryEmbedder embed.Embedder
	builder       *index.Builder
	exact         *ExactFinder
	background    *async.BackgroundIndexer
	config        EngineConfig

	conversationsFile string
	lockPath          string
	recorder          QueryRecorder

	current atomic.Pointer[snapshot]

	mu         sync.Mutex // guards generation and cancel
	generation uint64
	cancel     context.CancelFunc
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithConversationsFile sets the file that Import overwrites and Reload reads.
func WithConversationsFile(path string) EngineOption {
	return func(e *Engine) {
		e.conversationsFile = path
	}
}

// WithLockPath serializes builds across processes with a file lock at path.
func WithLockPath(path string) EngineOption {
	return func(e *Engine) {
		e.lockPath = path
	}
}

// QueryRecorder receives one event per answered search.
type QueryRecorder interface {
	Record(event telemetry.QueryEvent)
}

// WithQueryRecorder reports answered searches to r.
func WithQueryRecorder(r QueryRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine creates a search engine. Returns an error if any required
// dependency is nil. No index is live until the first Rebuild.
func NewEngine(
	conversations *conversation.Live,
	cache store.EmbeddingCache,
	embedder embed.Embedder,
	config EngineConfig,
	opts ...EngineOption,
) (*Engine, error) {
	if conversations == nil {
		return nil, fmt.Errorf("%w: conversation provider is required", ErrNilDependency)
	}
	if cache == nil {
		return nil, fmt.Errorf("%w: embedding cache is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}

	config = config.withDefaults()
	e := &Engine{
		conversations: conversations,
		cache:         cache,
		embedder:      embedder,
		queryEmbedder: embed.NewQueryEmbedder(embedder, config.QueryCacheSize),
		builder:       index.NewBuilder(cache, embedder, config.Builder),
		exact:         NewExactFinder(conversations, config.ExactMaxResults),
		config:        config,
	}
	e.background = async.NewBackgroundIndexer(func(ctx context.Context, _ uint64, progress *async.IndexProgress) error {
		_, err := e.RebuildWithProgress(ctx, progress)
		return err
	})
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Conversations returns the live conversation set.
func (e *Engine) Conversations() conversation.Provider {
	return e.conversations
}

// Ready reports whether a build has produced a live index.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

// Search answers query with at most limit results. Quoted queries go to the
// exact finder without touching the embedding provider; everything else is
// embedded and ranked by the live index. Hits whose conversation or message
// no longer exists in the live set are dropped, and the ranking order of
// the remaining hits is preserved.
func (e *Engine) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	start := time.Now()

	q, err := ParseQuery(query, e.config.MinQueryLength, e.config.MaxQueryLength)
	if err != nil {
		return nil, err
	}
	limit = e.clampLimit(limit)

	if q.IsExact() {
		results := e.exact.Find(q.Text)
		if len(results) > limit {
			results = results[:limit]
		}
		slog.Debug("search_complete",
			slog.String("kind", string(q.Kind)),
			slog.Int("results", len(results)),
			slog.Duration("duration", time.Since(start)))
		e.record(q, len(results), start)
		return results, nil
	}

	snap := e.current.Load()
	if snap == nil {
		return nil, lenserrors.IndexNotReady()
	}

	vec, err := e.queryEmbedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	hits, err := snap.index.TopK(vec, limit)
	if err != nil {
		return nil, err
	}

	results := e.resolve(hits)

	slog.Debug("search_complete",
		slog.String("kind", string(q.Kind)),
		slog.Int("hits", len(hits)),
		slog.Int("results", len(results)),
		slog.Uint64("generation", snap.generation),
		slog.Duration("duration", time.Since(start)))

	e.record(q, len(results), start)
	return results, nil
}

func (e *Engine) record(q Query, results int, start time.Time) {
	if e.recorder == nil {
		return
	}
	typ := telemetry.QueryTypeSemantic
	if q.IsExact() {
		typ = telemetry.QueryTypeExact
	}
	e.recorder.Record(telemetry.QueryEvent{
		Query:       q.Text,
		Type:        typ,
		ResultCount: results,
		Latency:     time.Since(start),
		Timestamp:   start,
	})
}

// resolve maps hits onto the live conversation set, dropping stale ones.
func (e *Engine) resolve(hits []store.Hit) []SearchResult {
	results := make([]SearchResult, 0, len(hits))
	dropped := 0
	for _, h := range hits {
		conv, ok := e.conversations.Get(h.ConversationID)
		if !ok {
			dropped++
			continue
		}

		var (
			msg   conversation.Message
			found bool
		)
		switch h.Kind {
		case store.KindConversation:
			msg, found = conv.FirstMessage()
		case store.KindMessage:
			msg, found = conv.Message(h.ID)
		}
		if !found {
			dropped++
			continue
		}
		results = append(results, resolved(h.Kind, conv, msg, h.Score))
	}
	if dropped > 0 {
		slog.Debug("search_stale_hits_dropped", slog.Int("count", dropped))
	}
	return results
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	return min(limit, e.config.MaxLimit)
}

// Rebuild reconciles the live conversation set against the cache and swaps
// in a fresh index. A Rebuild started while another is running cancels the
// older one; only the newest build's index is ever made live, and a
// superseded call returns an ERR_502_BUILD_SUPERSEDED error.
func (e *Engine) Rebuild(ctx context.Context) (*index.BuildReport, error) {
	return e.RebuildWithProgress(ctx, nil)
}

// RebuildWithProgress is Rebuild reporting into progress, which may be nil.
func (e *Engine) RebuildWithProgress(ctx context.Context, progress *async.IndexProgress) (*index.BuildReport, error) {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.generation++
	gen := e.generation
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.mu.Unlock()
	defer cancel()

	progress.SetStage(async.StageLoading)
	set := e.conversations.Snapshot()

	if e.lockPath != "" {
		lock := store.NewFileLock(e.lockPath)
		if err := lock.LockContext(runCtx); err != nil {
			if e.superseded(gen) {
				return nil, errSuperseded(gen)
			}
			return nil, lenserrors.New(lenserrors.ErrCodeStorageLocked, "failed to acquire build lock", err).
				WithDetail("path", e.lockPath)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				slog.Warn("build_lock_release_failed", slog.String("error", err.Error()))
			}
		}()
	}

	idx, report, err := e.builder.Build(runCtx, set.Conversations(), progress)
	if err != nil {
		if e.superseded(gen) {
			return report, errSuperseded(gen)
		}
		return report, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.generation {
		return report, errSuperseded(gen)
	}
	e.current.Store(&snapshot{
		index:      idx,
		report:     report,
		generation: gen,
		builtAt:    time.Now(),
	})

	slog.Info("index_swapped",
		slog.Uint64("generation", gen),
		slog.Int("conversations", set.Len()),
		slog.Int("indexed", idx.Len()))
	e.markIndexed(runCtx)
	return report, nil
}

// markIndexed records the build time for `chatlens status`. Failure only
// costs the timestamp.
func (e *Engine) markIndexed(ctx context.Context) {
	meta, ok := e.cache.(interface {
		SetMeta(ctx context.Context, key, value string) error
	})
	if !ok {
		return
	}
	if err := meta.SetMeta(ctx, store.MetaKeyLastIndexed, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("last_indexed_not_recorded", slog.String("error", err.Error()))
	}
}

func (e *Engine) superseded(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen != e.generation
}

// errSuperseded wraps context.Canceled so background runs record the build
// as superseded rather than failed.
func errSuperseded(gen uint64) error {
	return lenserrors.New(lenserrors.ErrCodeBuildSuperseded, "rebuild superseded by a newer one", context.Canceled).
		WithDetail("generation", fmt.Sprintf("%d", gen))
}

// RebuildAsync starts a rebuild in the background and returns immediately
// with its generation. Use Wait to block until the newest one finishes.
func (e *Engine) RebuildAsync(ctx context.Context) uint64 {
	return e.background.Start(ctx)
}

// Wait blocks until the newest background rebuild finishes.
func (e *Engine) Wait() error {
	return e.background.Wait()
}

// Replace swaps the live conversation set. The index is not rebuilt; hits
// for removed conversations are dropped at query time until it is.
func (e *Engine) Replace(conversations []conversation.Conversation) {
	e.conversations.Replace(conversation.NewSet(conversations))
}

// Import installs the conversations.json contained in a zip archive as the
// configured conversations file, swaps the live set and starts a background
// rebuild bound to ctx. It returns the number of imported conversations.
func (e *Engine) Import(ctx context.Context, r io.ReaderAt, size int64) (int, error) {
	if e.conversationsFile == "" {
		return 0, lenserrors.New(lenserrors.ErrCodeConfigInvalid, "no conversations file configured", nil)
	}

	convs, err := conversation.ImportArchive(r, size, e.conversationsFile)
	if err != nil {
		return 0, err
	}

	e.Replace(convs)
	gen := e.RebuildAsync(ctx)

	slog.Info("archive_imported",
		slog.Int("conversations", len(convs)),
		slog.Uint64("rebuild", gen))
	return len(convs), nil
}

// Reload re-reads the conversations file, swaps the live set and starts a
// background rebuild.
func (e *Engine) Reload(ctx context.Context) (int, error) {
	if e.conversationsFile == "" {
		return 0, lenserrors.New(lenserrors.ErrCodeConfigInvalid, "no conversations file configured", nil)
	}

	convs, err := conversation.LoadFile(e.conversationsFile)
	if err != nil {
		return 0, err
	}

	e.Replace(convs)
	e.RebuildAsync(ctx)
	return len(convs), nil
}

// Reset deletes every cached embedding and drops the live index. A build
// in flight is cancelled and superseded, so it can never install an index
// read from the cache as it was before the reset. The next Rebuild
// re-embeds everything, possibly with a different model.
func (e *Engine) Reset(ctx context.Context) error {
	r, ok := e.cache.(interface{ Reset(context.Context) error })
	if !ok {
		return lenserrors.New(lenserrors.ErrCodeInternal, "embedding cache does not support reset", nil)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.generation++

	if err := r.Reset(ctx); err != nil {
		return err
	}
	e.current.Store(nil)
	slog.Info("embedding_cache_reset", slog.Uint64("generation", e.generation))
	return nil
}

// Status reports readiness, the live index and background progress.
func (e *Engine) Status() EngineStatus {
	status := EngineStatus{
		Conversations: e.conversations.Snapshot().Len(),
		Model:         e.embedder.ModelName(),
		Rebuilding:    e.background.IsRunning(),
		Progress:      e.background.Progress().Snapshot(),
	}

	if qc, ok := e.queryEmbedder.(*embed.QueryCache); ok {
		stats := qc.Stats()
		status.QueryCache = &stats
	}

	if snap := e.current.Load(); snap != nil {
		status.Ready = true
		status.Generation = snap.generation
		status.Indexed = snap.index.Len()
		status.Dimensions = snap.index.Dimensions()
		status.BuiltAt = snap.builtAt
		status.LastBuild = snap.report
	}
	return status
}

// Close stops background rebuilds. The cache and embedder belong to the
// caller.
func (e *Engine) Close() error {
	e.background.Stop()
	return nil
}
