package logging

import (
	"log/slog"
)

// SetupStdioMode initializes logging for the MCP stdio server.
// stdout carries JSON-RPC exclusively, so logs go to the file only.
func SetupStdioMode(level string) (func(), error) {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	slog.Info("mcp_logging_initialized", slog.String("path", cfg.FilePath), slog.String("level", level))
	return cleanup, nil
}
