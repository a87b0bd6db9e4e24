// Package cmd provides the CLI commands for chatlens.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
	"github.com/Aman-CERP/chatlens/internal/logging"
	"github.com/Aman-CERP/chatlens/internal/profiling"
	"github.com/Aman-CERP/chatlens/pkg/version"
)

// Profiling flags
var (
	profileOpts    profiling.Options
	profileSession *profiling.Session
)

// Global flags
var (
	workDir        string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the chatlens CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatlens",
		Short: "Semantic search over your exported chat history",
		Long: `chatlens indexes the conversations.json of a ChatGPT data export and
answers free-text questions about it.

Messages are embedded with a local Ollama model (or a static offline
embedder) and cached, so only new messages are embedded on re-index.
Quoted queries ("like this") match exact text and need no embeddings.

Typical flow:
  chatlens import ~/Downloads/export.zip
  chatlens index
  chatlens search "that pasta recipe with anchovies"
  chatlens serve`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("chatlens version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Directory holding .chatlens.yaml; relative paths resolve against it")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and ~/.chatlens/logs/")

	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newSetupCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging starts profiling and debug logging if flags are set.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Short()))
	}

	if profileOpts.Enabled() {
		session, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = session
	}
	return nil
}

// stopProfilingAndLogging writes pending profiles and closes the log file.
// Safe to call twice.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}

	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// setupFileLogging routes logs to the rotating file at level, mirrored to
// stderr if asked, unless --debug already configured logging.
func setupFileLogging(level string, stderr bool) {
	if loggingCleanup != nil {
		return
	}
	cleanup, err := logging.SetupDefault(level, stderr)
	if err != nil {
		return
	}
	loggingCleanup = cleanup
}

// Execute runs the root command and prints a failing command's error.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	// PersistentPostRunE is skipped when RunE fails.
	_ = stopProfilingAndLogging(cmd, nil)
	if err != nil {
		printError(err)
	}
	return err
}

func printError(err error) {
	var de *doctorError
	if errors.As(err, &de) {
		return // results already printed
	}
	fmt.Fprint(os.Stderr, lenserrors.FormatForCLI(err))
}
