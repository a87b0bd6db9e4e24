package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/logging"
	"github.com/Aman-CERP/chatlens/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve search to AI assistants over MCP (stdio)",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools: search_conversations, get_conversation, index_status.
Each conversation is also exposed as a conversation://{id} resource.

stdout carries JSON-RPC only; logs go to ~/.chatlens/logs/server.log.`,
		Example: `  # Claude Desktop / Cursor configuration
  {"command": "chatlens", "args": ["mcp", "--dir", "/path/to/archive"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Re-index when the conversations file changes")
	return cmd
}

func runMCP(ctx context.Context, watch bool) error {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return fmt.Errorf("'chatlens mcp' speaks JSON-RPC on stdin; run it from an MCP client, not a terminal")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if loggingCleanup == nil {
		cleanup, err := logging.SetupStdioMode(cfg.Server.LogLevel)
		if err != nil {
			return err
		}
		loggingCleanup = cleanup
	}

	a, err := openApp(ctx, cfg, metricsFlushInterval)
	if err != nil {
		slog.Error("mcp_startup_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = a.Close() }()

	a.engine.RebuildAsync(ctx)

	if watch || cfg.Server.Watch {
		stopWatch, err := startWatcher(ctx, cfg, a)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	srv, err := mcp.NewServer(a.engine)
	if err != nil {
		return err
	}
	resources := srv.RegisterResources()
	slog.Info("mcp_ready", slog.Int("resources", resources))

	return srv.Serve(ctx, "stdio")
}
