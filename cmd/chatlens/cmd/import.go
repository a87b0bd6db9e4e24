package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/chatlens/internal/conversation"
	"github.com/Aman-CERP/chatlens/internal/output"
)

type importOptions struct {
	index bool
	noTUI bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <export.zip>",
		Short: "Import a ChatGPT data export",
		Long: `Extract conversations.json from a ChatGPT data export archive and
replace the configured conversations file with it.

The file is written atomically; a running 'chatlens serve --watch' picks
up the new file and reindexes on its own. Pass --index to embed the new
messages right away.`,
		Example: `  chatlens import ~/Downloads/chatgpt-export.zip
  chatlens import export.zip --index --no-tui`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupFileLogging(cfg.Server.LogLevel, false)

			dest := cfg.Paths.ConversationsFile
			convs, err := conversation.ImportArchiveFile(args[0], dest)
			if err != nil {
				return err
			}
			slog.Info("archive_imported",
				slog.String("archive", args[0]),
				slog.String("dest", dest),
				slog.Int("conversations", len(convs)))

			out := output.New(cmd.OutOrStdout())
			out.Successf("Imported %d conversations into %s", len(convs), dest)

			if !opts.index {
				out.Status("→", "Run 'chatlens index' to make them searchable")
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIndex(ctx, cmd, cfg, indexOptions{noTUI: opts.noTUI})
		},
	}

	cmd.Flags().BoolVar(&opts.index, "index", false, "Build the index after importing")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Disable TUI mode when indexing")

	return cmd
}
