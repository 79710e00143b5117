package project

import (
	"errors"
	"fmt"

	"github.com/rpggio/clusterbench/internal/domain/constraint"
)

// Error kinds. Transports map these with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrBadState      = errors.New("action not permitted in current state")
	ErrInconsistent  = constraint.ErrInconsistent
	ErrConflict      = errors.New("conflict: project was modified concurrently")
	ErrTaskFailed    = errors.New("task failed")
)

var (
	// ErrProjectNotFound indicates the project doesn't exist.
	ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)
	// ErrTextNotFound indicates the text doesn't exist in the project.
	ErrTextNotFound = fmt.Errorf("text %w", ErrNotFound)
	// ErrConstraintNotFound indicates the constraint doesn't exist in the project.
	ErrConstraintNotFound = fmt.Errorf("constraint %w", ErrNotFound)
	// ErrArtifactNotFound indicates the iteration has no such result.
	ErrArtifactNotFound = fmt.Errorf("artifact %w", ErrNotFound)

	// ErrTaskCanceled is returned to the runner when a task observed its cancel flag.
	ErrTaskCanceled = errors.New("task canceled")
	// ErrTaskSuperseded is returned to the runner when the project no longer runs its task.
	ErrTaskSuperseded = errors.New("task superseded")
)

func badState(action string, state State) error {
	return fmt.Errorf("%w: %s not allowed in %s", ErrBadState, action, state)
}
