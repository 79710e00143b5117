package activity

import "time"

// ActivityType represents the type of activity event
type ActivityType string

const (
	TypeProjectCreated      ActivityType = "project_created"
	TypeProjectRenamed      ActivityType = "project_renamed"
	TypeTextsImported       ActivityType = "texts_imported"
	TypeTextUpdated         ActivityType = "text_updated"
	TypeSettingsUpdated     ActivityType = "settings_updated"
	TypeConstraintAnnotated ActivityType = "constraint_annotated"
	TypeConstraintUpdated   ActivityType = "constraint_updated"
	TypeConstraintsApproved ActivityType = "constraints_approved"
	TypeConflictDetected    ActivityType = "conflict_detected"
	TypeIterationStarted    ActivityType = "iteration_started"
	TypeIterationDeleted    ActivityType = "iteration_deleted"
	TypeTaskQueued          ActivityType = "task_queued"
	TypeTaskSucceeded       ActivityType = "task_succeeded"
	TypeTaskFailed          ActivityType = "task_failed"
	TypeTaskCanceled        ActivityType = "task_canceled"
	TypeTaskInterrupted     ActivityType = "task_interrupted"
)

// ActivityEntry represents an event in a project's history
type ActivityEntry struct {
	ID           int64        `json:"id"`
	ProjectID    string       `json:"project_id"`
	Subject      *string      `json:"subject,omitempty"` // text or constraint id
	ActivityType ActivityType `json:"type"`
	Summary      string       `json:"summary"`
	Details      string       `json:"details,omitempty"` // JSON string
	IterationID  int          `json:"iteration_id"`
	DurationMS   *int64       `json:"duration_ms,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	Version      int64        `json:"version"`
}
