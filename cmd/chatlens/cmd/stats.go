package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/store"
	"github.com/Aman-CERP/chatlens/internal/telemetry"
)

// Persisted count keys, as written by the telemetry collector.
const (
	statsTypePrefix    = "type:"
	statsLatencyPrefix = "latency:"
	statsZeroResults   = "zero_results"
)

var latencyBuckets = []telemetry.LatencyBucket{
	telemetry.BucketP10,
	telemetry.BucketP50,
	telemetry.BucketP250,
	telemetry.BucketP1000,
	telemetry.BucketSlow,
}

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query statistics",
		Long: `Display query telemetry persisted by search, serve and mcp:
  - Query type distribution (semantic/exact)
  - Zero-result rate and the most recent zero-result queries
  - Latency distribution

Only counts are stored per day; query text is kept for zero-result
queries alone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			return runStats(cmd.Context(), cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

// StatsOutput is the JSON output format for query stats.
type StatsOutput struct {
	Summary             StatsSummary     `json:"summary"`
	QueryTypeCounts     map[string]int64 `json:"query_type_counts"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
}

// StatsSummary provides overview statistics.
type StatsSummary struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	TotalQueries  int64   `json:"total_queries"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool, days int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.CachePath()
	if !fileExists(path) {
		return fmt.Errorf("no cache found at %s\nRun 'chatlens index' to create one", path)
	}

	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	output, err := getQueryStats(ctx, store.NewQueryStatsStore(db), time.Now(), days)
	if err != nil {
		return fmt.Errorf("failed to get query stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}
	printStatsFormatted(cmd.OutOrStdout(), output)
	return nil
}

// getQueryStats aggregates the stored counts of the days ending at now.
func getQueryStats(ctx context.Context, stats *store.QueryStatsStore, now time.Time, days int) (*StatsOutput, error) {
	to := now.Format(time.DateOnly)
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)

	counts, err := stats.QueryCounts(ctx, from, to)
	if err != nil {
		return nil, err
	}
	zero, err := stats.RecentZeroResultQueries(ctx, 10)
	if err != nil {
		return nil, err
	}
	if zero == nil {
		zero = []string{}
	}

	output := &StatsOutput{
		Summary:             StatsSummary{From: from, To: to},
		QueryTypeCounts:     make(map[string]int64),
		ZeroResultQueries:   zero,
		LatencyDistribution: make(map[string]int64),
	}
	for key, n := range counts {
		switch {
		case strings.HasPrefix(key, statsTypePrefix):
			output.QueryTypeCounts[strings.TrimPrefix(key, statsTypePrefix)] = n
			output.Summary.TotalQueries += n
		case strings.HasPrefix(key, statsLatencyPrefix):
			output.LatencyDistribution[strings.TrimPrefix(key, statsLatencyPrefix)] = n
		}
	}
	if total := output.Summary.TotalQueries; total > 0 {
		output.Summary.ZeroResultPct = float64(counts[statsZeroResults]) / float64(total) * 100
	}
	return output, nil
}

func printStatsFormatted(w io.Writer, output *StatsOutput) {
	_, _ = fmt.Fprintln(w, "Query Statistics")
	_, _ = fmt.Fprintln(w, "================")
	_, _ = fmt.Fprintf(w, "%s to %s\n\n", output.Summary.From, output.Summary.To)

	_, _ = fmt.Fprintf(w, "Total Queries: %d\n", output.Summary.TotalQueries)
	_, _ = fmt.Fprintf(w, "Zero Results:  %.1f%%\n", output.Summary.ZeroResultPct)
	_, _ = fmt.Fprintln(w)

	if len(output.QueryTypeCounts) > 0 {
		_, _ = fmt.Fprintln(w, "Query Type Distribution:")
		for _, qt := range sortedKeys(output.QueryTypeCounts) {
			_, _ = fmt.Fprintf(w, "  %s: %d\n", qt, output.QueryTypeCounts[qt])
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(output.ZeroResultQueries) > 0 {
		_, _ = fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range output.ZeroResultQueries {
			_, _ = fmt.Fprintf(w, "  - %q\n", q)
		}
	} else {
		_, _ = fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
	}
	_, _ = fmt.Fprintln(w)

	if len(output.LatencyDistribution) > 0 {
		_, _ = fmt.Fprintln(w, "Latency Distribution:")
		for _, bucket := range latencyBuckets {
			if n, ok := output.LatencyDistribution[string(bucket)]; ok {
				_, _ = fmt.Fprintf(w, "  %-6s %d\n", string(bucket)+":", n)
			}
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
