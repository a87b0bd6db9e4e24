package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// conversationScheme prefixes conversation resource URIs.
const conversationScheme = "conversation://"

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// RegisterResources registers every loaded conversation as a markdown
// resource. Reads resolve against the live set, so a conversation removed
// by a later import reads as not found.
func (s *Server) RegisterResources() int {
	convs := s.engine.Conversations().Conversations()
	for _, c := range convs {
		uri := conversationScheme + c.ID
		s.mcp.AddResource(
			&mcp.Resource{
				Name:        c.Title,
				URI:         uri,
				Description: fmt.Sprintf("%s (%d messages)", c.Title, len(c.Messages)),
				MIMEType:    "text/markdown",
			},
			s.makeConversationHandler(uri),
		)
	}

	s.logger.Info("registered resources", "count", len(convs))
	return len(convs)
}

func (s *Server) makeConversationHandler(uri string) mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		content, err := s.ReadResource(uri)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: content.URI, MIMEType: content.MIMEType, Text: content.Content},
			},
		}, nil
	}
}

// ReadResource renders the conversation named by a conversation:// URI.
func (s *Server) ReadResource(uri string) (*ResourceContent, error) {
	id, ok := strings.CutPrefix(uri, conversationScheme)
	if !ok || id == "" {
		return nil, NewResourceNotFoundError(uri)
	}
	conv, found := s.engine.Conversations().Get(id)
	if !found {
		return nil, NewResourceNotFoundError(uri)
	}
	return &ResourceContent{
		URI:      uri,
		Content:  FormatConversation(conv),
		MIMEType: "text/markdown",
	}, nil
}
