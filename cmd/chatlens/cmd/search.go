package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/output"
	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/internal/store"
	"github.com/Aman-CERP/chatlens/internal/telemetry"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	format string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the conversation archive",
		Long: `Search conversations by meaning, or by exact text when quoted.

Unquoted queries are embedded and ranked against every message and
conversation title. Messages without a cached embedding are embedded
first, so the first search after an import can take a while; run
'chatlens index' to do that up front.

A query wrapped in double quotes is matched case-insensitively as a
substring of titles and messages and needs no embedding provider.`,
		Example: `  chatlens search "trip to japan budget"
  chatlens search '"docker compose"' --limit 5
  chatlens search "sourdough starter" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (0 = configured default)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

// searchOutput is the JSON output of the search command.
type searchOutput struct {
	Query   string                `json:"query"`
	Results []search.SearchResult `json:"results"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q (valid: text, json)", opts.format)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupFileLogging(cfg.Server.LogLevel, false)
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	q, err := search.ParseQuery(query, cfg.Search.MinQueryLength, cfg.Search.MaxQueryLength)
	if err != nil {
		return err
	}

	var results []search.SearchResult
	if q.IsExact() {
		results, err = exactSearch(cfg, q, opts.limit)
	} else {
		results, err = semanticSearch(ctx, cmd, cfg, query, opts.limit)
	}
	if err != nil {
		return err
	}
	if results == nil {
		results = []search.SearchResult{}
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(searchOutput{Query: query, Results: results})
	}
	output.New(cmd.OutOrStdout()).Results(query, results)
	return nil
}

// semanticSearch brings the index up to date, then queries it.
func semanticSearch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, query string, limit int) ([]search.SearchResult, error) {
	a, err := openApp(ctx, cfg, 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	report, err := a.engine.Rebuild(ctx)
	if err != nil {
		return nil, err
	}
	if report.Embedded > 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Embedded %d new units\n", report.Embedded)
	}
	if report.FailedBatches > 0 {
		output.New(cmd.ErrOrStderr()).Warningf("%d units could not be embedded and are not searchable yet", len(report.UnembeddedIDs))
	}

	return a.engine.Search(ctx, query, limit)
}

// exactSearch scans the conversations file directly. It needs neither the
// embedding provider nor an index.
func exactSearch(cfg *config.Config, q search.Query, limit int) ([]search.SearchResult, error) {
	start := time.Now()

	convs, err := loadConversations(cfg.Paths.ConversationsFile)
	if err != nil {
		return nil, err
	}
	live := conversation.NewLive(conversation.NewSet(convs))

	max := cfg.Search.ExactMaxResults
	if limit > 0 {
		max = min(limit, cfg.Search.MaxLimit)
	}
	results := search.NewExactFinder(live, max).Find(q.Text)

	recordExact(cfg, telemetry.QueryEvent{
		Query:       q.Text,
		Type:        telemetry.QueryTypeExact,
		ResultCount: len(results),
		Latency:     time.Since(start),
		Timestamp:   start,
	})
	return results, nil
}

// recordExact persists one query event. Statistics are best effort.
func recordExact(cfg *config.Config, event telemetry.QueryEvent) {
	db, err := store.Open(cfg.CachePath())
	if err != nil {
		slog.Warn("query_stats_unavailable", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = db.Close() }()

	metrics := telemetry.New(store.NewQueryStatsStore(db), telemetry.Config{})
	metrics.Record(event)
	if err := metrics.Close(); err != nil {
		slog.Warn("query_stats_not_saved", slog.String("error", err.Error()))
	}
}
