// Package logging provides structured JSON logging with size-based file
// rotation for chatlens. Logs go to ~/.chatlens/logs/server.log and, unless
// the process speaks MCP over stdio, are mirrored to stderr.
package logging
