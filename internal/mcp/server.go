package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/chatlens/internal/async"
	"github.com/Aman-CERP/chatlens/internal/search"
	"github.com/Aman-CERP/chatlens/pkg/version"
)

// Server is the MCP server for chatlens.
// It lets AI clients search and read the conversation archive.
type Server struct {
	mcp    *mcp.Server
	engine *search.Engine
	logger *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name: "search_conversations",
		Description: "Search past chat conversations by meaning. Returns the best matching conversations and " +
			"messages. Wrap the query in double quotes to find an exact phrase instead.",
	},
	{
		Name:        "get_conversation",
		Description: "Read a whole conversation by id, e.g. one returned by search_conversations.",
	},
	{
		Name:        "index_status",
		Description: "Check whether the semantic index is ready, how much is indexed and which model built it.",
	},
}

// NewServer creates a new MCP server backed by engine.
func NewServer(engine *search.Engine) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}

	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "chatlens",
			Version: version.Short(),
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(tools))
	copy(out, tools)
	return out
}

// CallTool invokes a tool by name with loosely typed arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_conversations":
		query, _ := args["query"].(string)
		limit := 0
		switch v := args["limit"].(type) {
		case int:
			limit = v
		case float64:
			limit = int(v)
		}
		return s.handleSearch(ctx, SearchInput{Query: query, Limit: limit})
	case "get_conversation":
		id, _ := args["conversation_id"].(string)
		return s.handleGetConversation(GetConversationInput{ConversationID: id})
	case "index_status":
		return s.handleIndexStatus(), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) handleSearch(ctx context.Context, input SearchInput) (SearchOutput, error) {
	if input.Query == "" {
		return SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	requestID := generateRequestID()
	start := time.Now()

	results, err := s.engine.Search(ctx, input.Query, input.Limit)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return SearchOutput{}, MapError(err)
	}

	s.logger.Debug("mcp_search",
		slog.String("request_id", requestID),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return SearchOutput{Results: results}, nil
}

func (s *Server) handleGetConversation(input GetConversationInput) (ConversationOutput, error) {
	if input.ConversationID == "" {
		return ConversationOutput{}, NewInvalidParamsError("conversation_id parameter is required")
	}
	conv, ok := s.engine.Conversations().Get(input.ConversationID)
	if !ok {
		return ConversationOutput{}, &MCPError{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("Conversation '%s' not found.", input.ConversationID),
		}
	}

	out := ConversationOutput{
		ID:       conv.ID,
		Title:    conv.Title,
		Created:  conv.Created,
		Messages: make([]MessageOutput, len(conv.Messages)),
	}
	for i, m := range conv.Messages {
		out.Messages[i] = MessageOutput{ID: m.ID, Role: m.Role, Text: m.Text, Created: m.Created}
	}
	return out, nil
}

func (s *Server) handleIndexStatus() *IndexStatusOutput {
	status := s.engine.Status()

	out := &IndexStatusOutput{
		Ready:         status.Ready,
		Conversations: status.Conversations,
		Indexed:       status.Indexed,
		Dimensions:    status.Dimensions,
		Model:         status.Model,
	}
	if !status.BuiltAt.IsZero() {
		out.LastIndexed = status.BuiltAt.UTC().Format(time.RFC3339)
	}
	if p := status.Progress; p.Status == string(async.StatusIndexing) {
		out.Indexing = &IndexingProgress{
			Stage:          p.Stage,
			UnitsMissing:   p.UnitsMissing,
			UnitsEmbedded:  p.UnitsEmbedded,
			ProgressPct:    p.ProgressPct,
			ElapsedSeconds: p.ElapsedSeconds,
		}
	}
	return out
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpGetConversationHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(tools)))
}

// mcpSearchHandler is the MCP SDK handler for the search_conversations tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	output, err := s.handleSearch(ctx, input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(input.Query, output.Results)}},
	}, output, nil
}

// mcpGetConversationHandler is the MCP SDK handler for the get_conversation tool.
func (s *Server) mcpGetConversationHandler(_ context.Context, _ *mcp.CallToolRequest, input GetConversationInput) (
	*mcp.CallToolResult,
	ConversationOutput,
	error,
) {
	output, err := s.handleGetConversation(input)
	if err != nil {
		return nil, ConversationOutput{}, err
	}
	return nil, output, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	return nil, s.handleIndexStatus(), nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
