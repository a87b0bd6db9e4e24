package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/config"
	"github.com/Aman-CERP/chatlens/internal/embed"
	"github.com/Aman-CERP/chatlens/internal/lifecycle"
	"github.com/Aman-CERP/chatlens/internal/output"
)

type setupOptions struct {
	check bool
	auto  bool
}

func newSetupCmd() *cobra.Command {
	var opts setupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Prepare the Ollama embedding provider",
		Long: `Check and prepare the Ollama embedding provider.

This command will:
1. Check if Ollama is installed and running
2. Start Ollama if installed but not running
3. Pull the configured embedding model if needed

A remote ollama_host is only checked; chatlens cannot start it.
Use --auto for non-interactive mode (no confirmation before pulling).`,
		Example: `  # Interactive setup
  chatlens setup

  # Check status only
  chatlens setup --check

  # Non-interactive setup
  chatlens setup --auto`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runSetup(ctx, cmd, cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.check, "check", false, "Only check status, don't start or pull")
	cmd.Flags().BoolVar(&opts.auto, "auto", false, "Non-interactive mode (auto-start, auto-pull)")

	return cmd
}

func runSetup(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts setupOptions) error {
	out := output.New(cmd.OutOrStdout())

	if embed.ParseProvider(cfg.Embeddings.Provider) == embed.ProviderStatic {
		out.Success("The static embedding provider needs no setup")
		return nil
	}

	model := cfg.Embeddings.Model
	m := lifecycle.NewManager(cfg.Embeddings.OllamaHost)

	if opts.check {
		return reportOllamaStatus(ctx, out, m, model)
	}

	interactive := !opts.auto && isatty.IsTerminal(os.Stdin.Fd())
	err := m.EnsureReady(ctx, model, lifecycle.EnsureOptions{
		AutoStart: true,
		ConfirmPull: func(model string) bool {
			if opts.auto {
				return true
			}
			if !interactive {
				return false
			}
			return lifecycle.Confirm(cmd.OutOrStdout(), cmd.InOrStdin(),
				"Embedding model "+model+" is not installed. Pull it now?", true)
		},
		Progress: lifecycle.PullProgressPrinter(cmd.OutOrStdout()),
		Out:      cmd.OutOrStdout(),
	})

	var notInstalled *lifecycle.NotInstalledError
	var notFound *lifecycle.ModelNotFoundError
	switch {
	case errors.As(err, &notInstalled):
		out.Error("Ollama is not installed")
		out.Newline()
		out.Code(lifecycle.InstallInstructions())
		return err
	case errors.As(err, &notFound):
		out.Warningf("Model %s is missing; pull it with: ollama pull %s", model, model)
		return err
	case err != nil:
		return err
	}

	out.Successf("Ollama is ready at %s with %s", m.Host(), model)
	out.Status("→", "Run 'chatlens index' to embed your conversations")
	return nil
}

func reportOllamaStatus(ctx context.Context, out *output.Writer, m *lifecycle.Manager, model string) error {
	status, err := m.Status(ctx, model)
	if err != nil {
		return err
	}

	out.Statusf("", "Host:      %s", m.Host())
	if !m.IsRemoteHost() {
		if status.Installed {
			out.Statusf("", "Installed: yes (%s)", status.InstalledPath)
		} else {
			out.Status("", "Installed: no")
		}
	}
	if status.Running {
		out.Status("", "Running:   yes")
	} else {
		out.Status("", "Running:   no")
	}
	if status.HasModel {
		out.Statusf("", "Model:     %s (available)", model)
	} else {
		out.Statusf("", "Model:     %s (missing)", model)
	}

	if status.Running && status.HasModel {
		out.Newline()
		out.Success("Ready")
		return nil
	}
	out.Newline()
	out.Warning("Not ready; run 'chatlens setup' to fix")
	return nil
}
