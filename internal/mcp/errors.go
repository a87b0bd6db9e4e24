// Package mcp implements the Model Context Protocol (MCP) server for chatlens.
package mcp

import (
	"context"
	"errors"
	"fmt"

	lenserrors "github.com/Aman-CERP/chatlens/internal/errors"
)

// Custom MCP error codes for chatlens.
const (
	// ErrCodeIndexNotReady indicates no build has produced a live index yet.
	ErrCodeIndexNotReady = -32001

	// ErrCodeProviderFailed indicates the embedding provider could not serve
	// the request.
	ErrCodeProviderFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeNotFound indicates an unknown conversation.
	ErrCodeNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var lensErr *lenserrors.LensError
	if errors.As(err, &lensErr) {
		return mapLensError(lensErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapLensError(le *lenserrors.LensError) *MCPError {
	message := le.Message
	if hint := lenserrors.Suggestion(le); hint != "" {
		message = fmt.Sprintf("%s %s", le.Message, hint)
	}

	switch le.Code {
	case lenserrors.ErrCodeIndexNotReady:
		return &MCPError{Code: ErrCodeIndexNotReady, Message: message}
	case lenserrors.ErrCodeConversationNotFound, lenserrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case lenserrors.ErrCodeProviderTimeout:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	}

	switch le.Category {
	case lenserrors.CategoryProvider:
		return &MCPError{Code: ErrCodeProviderFailed, Message: message}
	case lenserrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
