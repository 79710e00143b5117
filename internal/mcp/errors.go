package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rpggio/clusterbench/internal/domain/project"
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, project.ErrProjectNotFound):
		return &APIError{Code: "PROJECT_NOT_FOUND", Message: msg, RecoveryHint: "Call list_projects for valid ids"}
	case errors.Is(err, project.ErrTextNotFound):
		return &APIError{Code: "TEXT_NOT_FOUND", Message: msg, RecoveryHint: "Check the text ids of the pair"}
	case errors.Is(err, project.ErrConstraintNotFound):
		return &APIError{Code: "CONSTRAINT_NOT_FOUND", Message: msg, RecoveryHint: "Call list_constraints for valid ids"}
	case errors.Is(err, project.ErrNotFound):
		return &APIError{Code: "NOT_FOUND", Message: msg}
	case errors.Is(err, project.ErrInconsistent):
		return &APIError{Code: "INCONSISTENT", Message: msg, RecoveryHint: "Call check_pair and annotate consistently"}
	case errors.Is(err, project.ErrBadState):
		return &APIError{Code: "BAD_STATE", Message: msg, RecoveryHint: "Call get_status to see what the project allows"}
	case errors.Is(err, project.ErrBadRequest):
		return &APIError{Code: "BAD_REQUEST", Message: msg}
	case errors.Is(err, project.ErrConflict):
		return &APIError{Code: "CONFLICT", Message: msg, RecoveryHint: "Retry the call"}
	default:
		return &APIError{Code: "INTERNAL", Message: "internal error"}
	}
}

func toolError(err error) *sdkmcp.CallToolResult {
	apiErr := MapError(err)
	data, _ := json.Marshal(apiErr)
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}
