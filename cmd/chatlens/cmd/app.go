package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/embed"
	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/store"
	"github.com/Aman-CERP/chatlens/internal/telemetry"
)

// app holds the process-wide collaborators of one command run. Every
// command that searches or indexes opens exactly one.
type app struct {
	cfg       *config.Config
	db        *store.DB
	cache     *store.SQLiteCache
	favorites *store.FavoritesStore
	stats     *store.QueryStatsStore
	metrics   *telemetry.QueryMetrics
	embedder  embed.Embedder
	engine    *search.Engine
}

// loadConfig loads configuration for the --dir directory.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, lenserrors.ConfigError(err.Error(), err).
			WithSuggestion("Check .chatlens.yaml or run 'chatlens config init'")
	}
	return cfg, nil
}

// openStore opens the shared database under the data directory.
func openStore(cfg *config.Config) (*store.DB, *store.SQLiteCache, error) {
	db, err := store.Open(cfg.CachePath())
	if err != nil {
		return nil, nil, err
	}
	cache, err := store.NewSQLiteCache(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, cache, nil
}

// loadConversations reads the conversations file. A missing file yields an
// empty set so that `serve` can start before the first import.
func loadConversations(path string) ([]conversation.Conversation, error) {
	convs, err := conversation.LoadFile(path)
	if lenserrors.GetCode(err) == lenserrors.ErrCodeFileNotFound {
		slog.Warn("conversations_file_missing", slog.String("path", path))
		return nil, nil
	}
	return convs, err
}

// openApp wires the database, embedder, query metrics and engine. Query
// metrics are flushed to the database every flush interval and on Close;
// zero flushes only on Close.
func openApp(ctx context.Context, cfg *config.Config, flush time.Duration) (*app, error) {
	convs, err := loadConversations(cfg.Paths.ConversationsFile)
	if err != nil {
		return nil, err
	}

	db, cache, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:       cfg,
		db:        db,
		cache:     cache,
		favorites: store.NewFavoritesStore(db),
		stats:     store.NewQueryStatsStore(db),
	}

	a.embedder, err = embed.NewEmbedder(ctx, embed.OptionsFromConfig(cfg))
	if err != nil {
		_ = a.Close()
		return nil, lenserrors.New(lenserrors.ErrCodeProviderUnavailable, "embedding provider unavailable", err).
			WithSuggestion("Run 'chatlens doctor', or set embeddings.provider: static")
	}

	metricsCfg := telemetry.DefaultConfig()
	metricsCfg.FlushInterval = flush
	a.metrics = telemetry.New(a.stats, metricsCfg)

	a.engine, err = search.NewEngine(
		conversation.NewLive(conversation.NewSet(convs)),
		cache,
		a.embedder,
		search.ConfigFromConfig(cfg),
		search.WithConversationsFile(cfg.Paths.ConversationsFile),
		search.WithLockPath(cfg.LockPath()),
		search.WithQueryRecorder(a.metrics),
	)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}

	slog.Info("app_opened",
		slog.Int("conversations", len(convs)),
		slog.String("model", a.embedder.ModelName()),
		slog.String("cache", cfg.CachePath()))
	return a, nil
}

// Close stops rebuilds, flushes query metrics and closes the embedder and
// database, in that order.
func (a *app) Close() error {
	var errs []error
	if a.engine != nil {
		errs = append(errs, a.engine.Close())
	}
	if a.metrics != nil {
		errs = append(errs, a.metrics.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
