package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/output"
	"github.com/Aman-CERP/chatlens/internal/preflight"
	"github.com/Aman-CERP/chatlens/internal/server"
	"github.com/Aman-CERP/chatlens/internal/watcher"
	"github.com/Aman-CERP/chatlens/pkg/version"
)

// metricsFlushInterval is how often a long-running process persists query
// statistics.
const metricsFlushInterval = time.Minute

type serveOptions struct {
	addr      string
	watch     bool
	skipCheck bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the conversation archive and search over an HTTP JSON API.

Routes (all under /api):
  GET  /conversations                  list conversations, newest first
  GET  /conversations/{id}/messages    one conversation's messages
  GET  /search?query=&limit=           semantic or "exact" search
  POST /upload_zip                     import a data export zip
  POST /toggle_favorite?conv_id=       flip a favorite
  GET  /status                         index readiness and build progress
  GET  /stats                          query statistics of this process

The index is built in the background at startup; semantic search answers
once the first build completes. With --watch, edits to the conversations
file are picked up and re-indexed.`,
		Example: `  chatlens serve
  chatlens serve --addr :8080 --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-index when the conversations file changes")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip the first-run system check")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.watch {
		cfg.Server.Watch = true
	}

	setupFileLogging(cfg.Server.LogLevel, true)
	out := output.New(cmd.OutOrStdout())

	a, err := openApp(ctx, cfg, metricsFlushInterval)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if !opts.skipCheck && preflight.NeedsCheck(cfg.Paths.DataDir, version.Short()) {
		if err := firstRunCheck(ctx, a); err != nil {
			return err
		}
	}

	gen := a.engine.RebuildAsync(ctx)
	slog.Info("initial_rebuild_started", slog.Uint64("generation", gen))

	if cfg.Server.Watch {
		stopWatch, err := startWatcher(ctx, cfg, a)
		if err != nil {
			return err
		}
		defer stopWatch()
		out.Statusf("👀", "Watching %s", cfg.Paths.ConversationsFile)
	}

	srv := server.New(a.engine, a.favorites, server.Config{
		Addr:           cfg.Server.Addr,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
		Metrics:        a.metrics,
	})

	out.Statusf("🚀", "Serving %d conversations on http://%s", a.engine.Status().Conversations, cfg.Server.Addr)
	out.Status("", "Indexing in the background; Ctrl+C to stop")
	return srv.ListenAndServe(ctx)
}

// firstRunCheck runs the system checks once per installed version.
func firstRunCheck(ctx context.Context, a *app) error {
	checker := preflight.New(
		preflight.WithConversationsFile(a.cfg.Paths.ConversationsFile),
		preflight.WithDataDir(a.cfg.Paths.DataDir),
		preflight.WithEmbedder(a.embedder),
		preflight.WithCache(a.cache),
	)
	results := checker.RunAll(ctx)
	for _, r := range results {
		if r.Status != preflight.StatusPass {
			slog.Warn("preflight_check", slog.String("name", r.Name),
				slog.String("status", r.Status.String()), slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed; run 'chatlens doctor' for details")
	}
	if err := preflight.MarkPassed(a.cfg.Paths.DataDir, version.Short()); err != nil {
		slog.Warn("preflight_marker_not_written", slog.String("error", err.Error()))
	}
	return nil
}

// startWatcher reloads the engine whenever the conversations file settles
// after a change. The returned function stops the watcher.
func startWatcher(ctx context.Context, cfg *config.Config, a *app) (func(), error) {
	w, err := watcher.NewFileWatcher(cfg.Paths.ConversationsFile, watcher.Options{
		DebounceWindow: cfg.WatchDebounceDuration(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch conversations file: %w", err)
	}

	go func() {
		if err := w.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("watcher_stopped", slog.String("error", err.Error()))
		}
	}()
	go watcher.RunReloads(ctx, w, a.engine.Reload)

	slog.Info("watcher_started", slog.String("path", w.Path()), slog.String("type", w.WatcherType()))
	return func() { _ = w.Stop() }, nil
}
