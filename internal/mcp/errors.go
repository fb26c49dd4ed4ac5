// Package mcp exposes the ranking engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"errors"
	"fmt"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeCorpusUnavailable indicates the corpus could not be loaded.
	ErrCodeCorpusUnavailable = -32001

	// ErrCodeRankFailed indicates a valid query that could not be solved.
	ErrCodeRankFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrLabelsDisabled is returned by label tools when no label index is loaded.
var ErrLabelsDisabled = errors.New("label index disabled")

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// RankCode is the conceptrank error code, if any.
	RankCode string `json:"rank_code,omitempty"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	if e.RankCode != "" {
		return fmt.Sprintf("MCP error %d (%s): %s", e.Code, e.RankCode, e.Message)
	}
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

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out.", RankCode: crerrors.GetCode(err)}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled.", RankCode: crerrors.GetCode(err)}
	case errors.Is(err, ErrLabelsDisabled):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Label index is disabled. Set labels.index in config."}
	}

	var re *crerrors.RankError
	if errors.As(err, &re) {
		return mapRankError(re)
	}
	return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

func mapRankError(re *crerrors.RankError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	code := ErrCodeInternalError
	switch re.Category {
	case crerrors.CategoryValidation:
		code = ErrCodeInvalidParams
	case crerrors.CategoryIO:
		code = ErrCodeCorpusUnavailable
	case crerrors.CategoryNumerical:
		if re.Code != crerrors.ErrCodeInternal {
			code = ErrCodeRankFailed
		}
	}
	return &MCPError{Code: code, Message: message, RankCode: re.Code}
}
