package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rpggio/clusterbench/internal/domain/project"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyExists = "ALREADY_EXISTS"
	CodeBadRequest    = "BAD_REQUEST"
	CodeBadState      = "BAD_STATE"
	CodeConflict      = "CONFLICT"
	CodeInconsistent  = "INCONSISTENT"
	CodeTaskFailed    = "TASK_FAILED"
	CodeInternal      = "INTERNAL"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StatusFor maps a domain error to its HTTP status and code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, project.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, project.ErrAlreadyExists):
		return http.StatusConflict, CodeAlreadyExists
	case errors.Is(err, project.ErrBadRequest):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, project.ErrBadState):
		return http.StatusConflict, CodeBadState
	case errors.Is(err, project.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, project.ErrInconsistent):
		return http.StatusUnprocessableEntity, CodeInconsistent
	case errors.Is(err, project.ErrTaskFailed):
		return http.StatusInternalServerError, CodeTaskFailed
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	msg := err.Error()
	if code == CodeInternal {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, ErrorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
