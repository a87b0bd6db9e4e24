package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/embed"
	"github.com/Aman-CERP/chatlens/internal/store"
	"github.com/Aman-CERP/chatlens/internal/ui"
)

// providerCheckTimeout bounds the Ollama health check in status.
const providerCheckTimeout = 3 * time.Second

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show archive and cache status",
		Long: `Display information about the archive and the embedding cache:
  - Number of conversations in the conversations file
  - Cached embeddings, cache size and location
  - Last time an index was built
  - Embedding model and whether the provider is reachable`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := collectStatus(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		ConversationsFile: cfg.Paths.ConversationsFile,
		CachePath:         cfg.CachePath(),
		Model:             cfg.Embeddings.Model,
		Dimensions:        cfg.Embeddings.Dimensions,
	}

	convs, err := loadConversations(cfg.Paths.ConversationsFile)
	if err != nil {
		return info, err
	}
	info.Conversations = len(convs)

	if fileExists(info.CachePath) {
		if err := collectCacheStatus(ctx, &info); err != nil {
			return info, err
		}
	}

	info.ProviderStatus = checkProvider(ctx, cfg)
	return info, nil
}

// collectCacheStatus fills the cache fields from an existing database. The
// model recorded in the cache wins over the configured one: it is what the
// cached vectors were made with.
func collectCacheStatus(ctx context.Context, info *ui.StatusInfo) error {
	db, err := store.Open(info.CachePath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	cache, err := store.NewSQLiteCache(db)
	if err != nil {
		return err
	}

	if info.CacheEntries, err = cache.Count(ctx); err != nil {
		return err
	}
	if model, ok, err := cache.Meta(ctx, store.MetaKeyModel); err == nil && ok {
		info.Model = model
	}
	if dims := cache.Dimensions(); dims > 0 {
		info.Dimensions = dims
	}
	if ts, ok, err := cache.Meta(ctx, store.MetaKeyLastIndexed); err == nil && ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			info.LastIndexed = t
		}
	}

	info.CacheSize = getFileSize(info.CachePath) + getFileSize(info.CachePath+"-wal")
	return nil
}

// checkProvider reports whether the configured provider answers. The static
// provider has nothing to reach.
func checkProvider(ctx context.Context, cfg *config.Config) string {
	opts := embed.OptionsFromConfig(cfg)
	if opts.Provider == embed.ProviderStatic {
		return "n/a"
	}

	ctx, cancel := context.WithTimeout(ctx, providerCheckTimeout)
	defer cancel()

	e, err := embed.NewEmbedder(ctx, opts)
	if err != nil {
		return "offline"
	}
	defer func() { _ = e.Close() }()
	if !e.Available(ctx) {
		return "offline"
	}
	return "ready"
}

// getFileSize returns the size of a file in bytes, or 0 if it is missing.
func getFileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// fileExists returns true if a regular file exists at path.
func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

