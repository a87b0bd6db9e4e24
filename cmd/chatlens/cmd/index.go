package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/async"
	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/ui"
)

// progressInterval is how often the renderer samples rebuild progress.
const progressInterval = 100 * time.Millisecond

type indexOptions struct {
	reset    bool
	noTUI    bool
	provider string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed new messages and build the search index",
		Long: `Reconcile the conversations file against the embedding cache, embed
every message and conversation title that has no cached vector yet, and
build the similarity index.

Embeddings are keyed by message id and never recomputed, so re-running
index after an import only embeds what is new. Batches that keep failing
are reported and retried on the next run.

Use --reset after changing the embedding model: vectors from different
models cannot be mixed in one cache.`,
		Example: `  chatlens index
  chatlens index --no-tui
  chatlens index --reset --provider static`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if opts.provider != "" {
				cfg.Embeddings.Provider = opts.provider
			}
			return runIndex(ctx, cmd, cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Delete all cached embeddings and re-embed from scratch")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Embedding provider override: ollama or static")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts indexOptions) error {
	setupFileLogging(cfg.Server.LogLevel, false)

	a, err := openApp(ctx, cfg, 0)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if opts.reset {
		if err := a.engine.Reset(ctx); err != nil {
			return err
		}
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI),
		ui.WithSource(cfg.Paths.ConversationsFile),
	))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	a.engine.RebuildAsync(ctx)

	var buildErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		buildErr = a.engine.Wait()
	}()

	ui.Follow(ctx, renderer, func() async.IndexProgressSnapshot {
		return a.engine.Status().Progress
	}, progressInterval, done)
	<-done

	if buildErr != nil {
		renderer.AddError(ui.ErrorEvent{Subject: "index", Err: buildErr})
		return buildErr
	}

	renderer.Complete(completionStats(a.engine.Status()))
	return nil
}

// completionStats summarizes the live index for the renderer.
func completionStats(status search.EngineStatus) ui.CompletionStats {
	stats := ui.CompletionStats{
		Conversations: status.Conversations,
		Indexed:       status.Indexed,
		Model:         status.Model,
		Dimensions:    status.Dimensions,
	}
	if r := status.LastBuild; r != nil {
		stats.Units = r.Units
		stats.Embedded = r.Embedded
		stats.Skipped = r.Skipped
		stats.FailedBatches = r.FailedBatches
		stats.Unembedded = len(r.UnembeddedIDs)
		stats.Duration = r.Duration
	}
	return stats
}
