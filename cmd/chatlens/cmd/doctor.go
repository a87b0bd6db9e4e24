package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/embed"
	"github.com/Aman-CERP/chatlens/internal/lifecycle"
	"github.com/Aman-CERP/chatlens/internal/preflight"
	"github.com/Aman-CERP/chatlens/pkg/version"
)

// doctorConnectTimeout bounds connecting to the embedding provider.
const doctorConnectTimeout = 10 * time.Second

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose issues",
		Long: `Run system diagnostics to ensure chatlens can operate correctly.

Checks:
  - Conversations file (present and parseable)
  - Write permissions on the data directory
  - Disk space (100MB minimum)
  - File descriptor limits (256 minimum)
  - Embedding provider reachability
  - Embedding cache consistency with the configured model

A cache filled by a different model is a critical failure: its vectors
cannot be compared with new ones. Run 'chatlens index --reset' to fix it.

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  chatlens doctor

  # JSON output for scripting
  chatlens doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := []preflight.Option{
		preflight.WithConversationsFile(cfg.Paths.ConversationsFile),
		preflight.WithDataDir(cfg.Paths.DataDir),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	}

	var extra []preflight.CheckResult
	embedder, err := connectEmbedder(ctx, cfg)
	if err != nil {
		extra = append(extra, providerUnavailable(cfg, err))
	} else {
		defer func() { _ = embedder.Close() }()
		opts = append(opts, preflight.WithEmbedder(embedder))

		if fileExists(cfg.CachePath()) {
			db, cache, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			opts = append(opts, preflight.WithCache(cache))
		}
	}

	checker := preflight.New(opts...)
	results := append(checker.RunAll(ctx), extra...)

	if jsonOutput {
		if err := outputJSON(cmd, checker, results); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}
	if err := preflight.MarkPassed(cfg.Paths.DataDir, version.Short()); err != nil {
		cmd.PrintErrf("warning: %v\n", err)
	}
	return nil
}

func connectEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	ctx, cancel := context.WithTimeout(ctx, doctorConnectTimeout)
	defer cancel()
	return embed.NewEmbedder(ctx, embed.OptionsFromConfig(cfg))
}

// providerUnavailable explains why no embedder could be created, with the
// install instructions when a local Ollama is missing altogether.
func providerUnavailable(cfg *config.Config, err error) preflight.CheckResult {
	result := preflight.CheckResult{
		Name:    "embedding_provider",
		Status:  preflight.StatusWarn,
		Message: err.Error(),
		Details: "Run 'chatlens setup'; exact (quoted) search works without a provider",
	}
	m := lifecycle.NewManager(cfg.Embeddings.OllamaHost)
	if installed, _ := m.IsInstalled(); !installed && !m.IsRemoteHost() {
		result.Message = "ollama is not installed"
		result.Details = lifecycle.InstallInstructions()
	}
	return result
}

// doctorError reports failed checks. The results are already printed, so
// Execute does not print it again.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}

// JSONOutput is the structure for JSON output.
type JSONOutput struct {
	Status   string                  `json:"status"`
	Checks   []preflight.CheckResult `json:"checks"`
	Warnings []string                `json:"warnings,omitempty"`
	Errors   []string                `json:"errors,omitempty"`
}

func outputJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	output := JSONOutput{
		Status: checker.SummaryStatus(results),
		Checks: results,
	}

	for _, r := range results {
		if r.IsCritical() {
			output.Errors = append(output.Errors, r.Name+": "+r.Message)
		} else if r.Status != preflight.StatusPass {
			output.Warnings = append(output.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
