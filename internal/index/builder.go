package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/chatlens/internal/async"
	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/embed"
	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
	"github.com/Aman-CERP/chatlens/internal/store"
)

// IndexFactory builds a similarity index from the full cache contents.
type IndexFactory func(dims int, entries []store.CachedEmbedding) (store.SimilarityIndex, error)

// FlatFactory builds the exact linear-scan index.
func FlatFactory() IndexFactory {
	return func(dims int, entries []store.CachedEmbedding) (store.SimilarityIndex, error) {
		return store.NewFlatIndex(dims, entries)
	}
}

// HNSWFactory builds the approximate index with exact rescoring.
func HNSWFactory(cfg store.HNSWConfig) IndexFactory {
	return func(dims int, entries []store.CachedEmbedding) (store.SimilarityIndex, error) {
		return store.NewHNSWIndex(dims, entries, cfg)
	}
}

// BuilderConfig tunes provider traffic during a build.
type BuilderConfig struct {
	// BatchSize is the number of units per provider call.
	BatchSize int
	// Concurrency is the number of batches in flight.
	Concurrency int
	// Retry governs per-batch retries of retryable provider errors.
	Retry lenserrors.RetryConfig
	// NewIndex builds the index from the cache (default FlatFactory).
	NewIndex IndexFactory
}

// DefaultBuilderConfig returns the defaults used by the CLI and server.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		BatchSize:   embed.DefaultBatchSize,
		Concurrency: 4,
		Retry:       lenserrors.DefaultRetryConfig(),
		NewIndex:    FlatFactory(),
	}
}

// BuildReport summarizes one reconciliation.
type BuildReport struct {
	// Units is the number of non-blank embeddable units in the conversation set.
	Units int `json:"units"`
	// Missing is the number of units that had no cache entry.
	Missing int `json:"missing"`
	// Embedded is the number of new cache entries written.
	Embedded int `json:"embedded"`
	// Skipped is the number of blank units never sent to the provider.
	Skipped int `json:"skipped"`
	// FailedBatches is the number of batches that exhausted their retries.
	FailedBatches int `json:"failed_batches"`
	// UnembeddedIDs lists units left without a cache entry, sorted.
	UnembeddedIDs []string `json:"unembedded_ids,omitempty"`
	// UnembeddedConversationIDs lists conversations with at least one such unit, sorted.
	UnembeddedConversationIDs []string `json:"unembedded_conversation_ids,omitempty"`
	// Indexed is the number of entries in the resulting index.
	Indexed int `json:"indexed"`
	// Duration is the wall-clock build time.
	Duration time.Duration `json:"duration"`
}

// Complete reports whether every unit now has a cache entry.
func (r *BuildReport) Complete() bool {
	return r != nil && len(r.UnembeddedIDs) == 0
}

// cacheMeta is implemented by caches that can pin the model that filled them.
type cacheMeta interface {
	Meta(ctx context.Context, key string) (string, bool, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Builder reconciles conversations against the embedding cache and builds a
// fresh similarity index from the cache.
type Builder struct {
	cache    store.EmbeddingCache
	embedder embed.Embedder
	config   BuilderConfig
}

// NewBuilder creates a builder. Zero config fields take defaults.
func NewBuilder(cache store.EmbeddingCache, embedder embed.Embedder, cfg BuilderConfig) *Builder {
	def := DefaultBuilderConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchSize > embed.MaxBatchSize {
		cfg.BatchSize = embed.MaxBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = lenserrors.IsRetryable
	}
	if cfg.NewIndex == nil {
		cfg.NewIndex = def.NewIndex
	}
	return &Builder{cache: cache, embedder: embedder, config: cfg}
}

// Build embeds every unit missing from the cache and returns an index over
// the whole cache.
//
// A batch whose provider call keeps failing is reported and skipped; the
// build still succeeds with partial coverage, and so does a batch with an
// empty, non-finite or wrongly sized vector. Storage errors, a provider
// model that does not fit the cache, and cancellation abort the build.
// progress may be nil.
func (b *Builder) Build(ctx context.Context, conversations []conversation.Conversation, progress *async.IndexProgress) (store.SimilarityIndex, *BuildReport, error) {
	start := time.Now()
	report := &BuildReport{}

	progress.SetStage(async.StageReconciling)
	units, skipped := Flatten(conversations)
	report.Units = len(units)
	report.Skipped = skipped

	if err := b.checkModel(ctx); err != nil {
		return nil, report, err
	}

	cached, err := b.cache.ContainsIDs(ctx)
	if err != nil {
		return nil, report, err
	}

	var missing []EmbeddableUnit
	for _, u := range units {
		if _, ok := cached[u.ID]; !ok {
			missing = append(missing, u)
		}
	}
	report.Missing = len(missing)
	progress.SetUnits(len(units), len(missing))

	if len(missing) > 0 {
		if err := b.embedMissing(ctx, missing, report, progress); err != nil {
			return nil, report, err
		}
	}

	progress.SetStage(async.StageIndexing)
	entries, err := b.cache.All(ctx)
	if err != nil {
		return nil, report, err
	}
	idx, err := b.config.NewIndex(b.cache.Dimensions(), entries)
	if err != nil {
		return nil, report, err
	}
	report.Indexed = idx.Len()
	report.Duration = time.Since(start)

	slog.Info("index_build_complete",
		slog.Int("units", report.Units),
		slog.Int("missing", report.Missing),
		slog.Int("embedded", report.Embedded),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed_batches", report.FailedBatches),
		slog.Int("indexed", report.Indexed),
		slog.Duration("duration", report.Duration))

	return idx, report, nil
}

// embedMissing sends missing units to the provider in bounded concurrent
// batches and writes each successful batch to the cache.
func (b *Builder) embedMissing(ctx context.Context, missing []EmbeddableUnit, report *BuildReport, progress *async.IndexProgress) error {
	batches := chunkUnits(missing, b.config.BatchSize)
	progress.SetStage(async.StageEmbedding)
	progress.SetBatchesTotal(len(batches))

	var (
		mu           sync.Mutex
		failedIDs    []string
		failedConvs  = make(map[string]struct{})
		embeddedSeen int
	)

	dims := newDimensionPin(b.cache.Dimensions(), b.embedder.Dimensions())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			vecs, err := b.embedBatch(gctx, batch, dims)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("embedding_batch_failed",
					slog.Int("batch", i),
					slog.Int("units", len(batch)),
					slog.String("error", err.Error()))

				mu.Lock()
				report.FailedBatches++
				for _, u := range batch {
					failedIDs = append(failedIDs, u.ID)
					failedConvs[u.ConversationID] = struct{}{}
				}
				mu.Unlock()
				progress.BatchFailed()
				return nil
			}

			entries := make([]store.CachedEmbedding, len(batch))
			for j, u := range batch {
				entries[j] = store.CachedEmbedding{
					ID:             u.ID,
					Kind:           u.Kind,
					ConversationID: u.ConversationID,
					Vector:         vecs[j],
				}
			}

			n, err := b.cache.PutBatch(gctx, entries)
			if err != nil {
				return err
			}

			mu.Lock()
			embeddedSeen += n
			mu.Unlock()
			progress.BatchDone(n)
			return nil
		})
	}

	err := g.Wait()

	report.Embedded = embeddedSeen
	slices.Sort(failedIDs)
	report.UnembeddedIDs = failedIDs
	for id := range failedConvs {
		report.UnembeddedConversationIDs = append(report.UnembeddedConversationIDs, id)
	}
	slices.Sort(report.UnembeddedConversationIDs)

	return err
}

// embedBatch calls the provider with retries and verifies that it returned
// exactly one usable vector per unit before anything is zipped together.
// Malformed output fails only this batch.
func (b *Builder) embedBatch(ctx context.Context, batch []EmbeddableUnit, dims *dimensionPin) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, u := range batch {
		texts[i] = u.Text
	}

	return lenserrors.RetryWithResult(ctx, b.config.Retry, func() ([][]float32, error) {
		vecs, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, lenserrors.New(lenserrors.ErrCodeProviderBadResponse,
				fmt.Sprintf("provider returned %d vectors for %d texts", len(vecs), len(texts)), nil)
		}
		if err := checkVectors(vecs, dims); err != nil {
			return nil, err
		}
		return vecs, nil
	})
}

// dimensionPin is the vector dimension every batch of a build must match:
// the cache's, else the provider's declared one, else the first batch's.
type dimensionPin struct {
	dims atomic.Int64
}

func newDimensionPin(cacheDims, providerDims int) *dimensionPin {
	p := &dimensionPin{}
	switch {
	case cacheDims > 0:
		p.dims.Store(int64(cacheDims))
	case providerDims > 0:
		p.dims.Store(int64(providerDims))
	}
	return p
}

// want returns the pinned dimension, pinning n if nothing is pinned yet.
func (p *dimensionPin) want(n int) int {
	p.dims.CompareAndSwap(0, int64(n))
	return int(p.dims.Load())
}

// checkVectors rejects empty, wrongly sized and non-finite vectors.
func checkVectors(vecs [][]float32, dims *dimensionPin) error {
	for i, v := range vecs {
		if len(v) == 0 {
			return lenserrors.New(lenserrors.ErrCodeProviderBadResponse,
				fmt.Sprintf("provider returned an empty vector at position %d", i), nil)
		}
		for _, x := range v {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return lenserrors.New(lenserrors.ErrCodeProviderBadResponse,
					fmt.Sprintf("provider returned a non-finite value at position %d", i), nil)
			}
		}
	}
	// Pin only after the whole batch is well formed.
	want := dims.want(len(vecs[0]))
	for i, v := range vecs {
		if len(v) != want {
			return lenserrors.New(lenserrors.ErrCodeProviderBadResponse,
				fmt.Sprintf("provider returned a %d-dimension vector at position %d, expected %d", len(v), i, want), nil).
				WithDetail("expected", fmt.Sprint(want)).
				WithDetail("got", fmt.Sprint(len(v)))
		}
	}
	return nil
}

// checkModel pins the cache to the embedder's model on first use and refuses
// to mix vectors from different models afterwards.
func (b *Builder) checkModel(ctx context.Context) error {
	model := b.embedder.ModelName()

	if dims := b.embedder.Dimensions(); dims > 0 && b.cache.Dimensions() > 0 && dims != b.cache.Dimensions() {
		return lenserrors.DimensionMismatch(b.cache.Dimensions(), dims).
			WithDetail("model", model).
			WithSuggestion("Run 'chatlens index --reset' to re-embed with the new model")
	}

	meta, ok := b.cache.(cacheMeta)
	if !ok {
		return nil
	}

	pinned, found, err := meta.Meta(ctx, store.MetaKeyModel)
	if err != nil {
		return err
	}
	if !found || b.cache.Dimensions() == 0 {
		// Nothing embedded yet; the configured model may take over.
		return meta.SetMeta(ctx, store.MetaKeyModel, model)
	}
	if pinned != model {
		return lenserrors.New(lenserrors.ErrCodeConfigInvalid,
			fmt.Sprintf("embedding cache was built with model %q, configured model is %q", pinned, model), nil).
			WithSuggestion("Run 'chatlens index --reset' to re-embed, or configure the original model")
	}
	return nil
}

// chunkUnits splits units into consecutive batches of at most size.
func chunkUnits(units []EmbeddableUnit, size int) [][]EmbeddableUnit {
	var batches [][]EmbeddableUnit
	for start := 0; start < len(units); start += size {
		end := min(start+size, len(units))
		batches = append(batches, units[start:end])
	}
	return batches
}
