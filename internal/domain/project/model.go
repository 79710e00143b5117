package project

import (
	"sort"
	"strconv"

	"github.com/rpggio/clusterbench/internal/domain/constraint"
)

// Metadata identifies a project. Version is the snapshot's optimistic concurrency token.
type Metadata struct {
	ID         string `json:"project_id"`
	Name       string `json:"name"`
	CreatedAt  int64  `json:"created_at"`
	ModifiedAt int64  `json:"modified_at"`
	Version    int64  `json:"version"`
}

// Text is one document of the corpus. Deletion is logical.
type Text struct {
	ID           string `json:"text_id"`
	Original     string `json:"text_original"`
	Preprocessed string `json:"text_preprocessed"`
	IsDeleted    bool   `json:"is_deleted"`
}

// Task describes the background computation currently owning the project.
type Task struct {
	ID              string   `json:"task_id"`
	Kind            TaskKind `json:"kind"`
	IterationID     int      `json:"iteration_id"`
	Progress        int      `json:"progress"`
	CancelRequested bool     `json:"cancel_requested"`
	PreviousState   State    `json:"previous_state"`
	StartedAt       int64    `json:"started_at"`
}

// TaskOutcome is how a task ended.
type TaskOutcome string

const (
	OutcomeSucceeded   TaskOutcome = "succeeded"
	OutcomeFailed      TaskOutcome = "failed"
	OutcomeCanceled    TaskOutcome = "canceled"
	OutcomeInterrupted TaskOutcome = "interrupted"
)

// LastTask records the end of the most recent task.
type LastTask struct {
	Kind       TaskKind    `json:"kind"`
	Outcome    TaskOutcome `json:"outcome"`
	DurationMS int64       `json:"duration_ms"`
	FinishedAt int64       `json:"finished_at"`
}

// Status holds the workflow position of a project.
type Status struct {
	State                 State     `json:"state"`
	IterationID           int       `json:"iteration_id"`
	ModelizationIteration int       `json:"modelization_iteration"`
	Task                  *Task     `json:"task"`
	LastError             string    `json:"last_error,omitempty"`
	LastTask              *LastTask `json:"last_task,omitempty"`
	Warnings              []string  `json:"warnings,omitempty"`
}

// Snapshot is the complete durable state of a project, excluding per-iteration artifacts.
type Snapshot struct {
	Metadata    Metadata
	Settings    map[int]Settings
	Texts       map[string]Text
	Constraints map[string]constraint.Constraint
	Status      Status
}

// NewSnapshot returns the initial snapshot of a project.
func NewSnapshot(id, name string, now int64) *Snapshot {
	return &Snapshot{
		Metadata: Metadata{
			ID:         id,
			Name:       name,
			CreatedAt:  now,
			ModifiedAt: now,
		},
		Settings:    map[int]Settings{0: DefaultSettings()},
		Texts:       map[string]Text{},
		Constraints: map[string]constraint.Constraint{},
		Status: Status{
			State:                 StateInitializationWithoutModelization,
			ModelizationIteration: -1,
		},
	}
}

// CurrentSettings returns the settings of the current iteration.
func (s *Snapshot) CurrentSettings() Settings {
	if st, ok := s.Settings[s.Status.IterationID]; ok {
		return st
	}
	return DefaultSettings()
}

// ActiveTexts returns the non-deleted texts sorted by id.
func (s *Snapshot) ActiveTexts() []Text {
	out := make([]Text, 0, len(s.Texts))
	for _, t := range s.Texts {
		if !t.IsDeleted {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConstraintList returns the constraints sorted by id.
func (s *Snapshot) ConstraintList() []constraint.Constraint {
	out := make([]constraint.Constraint, 0, len(s.Constraints))
	for _, c := range s.Constraints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingInIteration counts unannotated constraints sampled in the given iteration.
func (s *Snapshot) PendingInIteration(iteration int) int {
	n := 0
	for _, c := range s.Constraints {
		if c.IterationOfSampling == iteration && c.Pending() {
			n++
		}
	}
	return n
}

// MaxSettingsIteration returns the highest iteration with settings.
func (s *Snapshot) MaxSettingsIteration() int {
	highest := -1
	for i := range s.Settings {
		if i > highest {
			highest = i
		}
	}
	return highest
}

// Clone returns a deep copy safe to mutate.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Metadata:    s.Metadata,
		Settings:    make(map[int]Settings, len(s.Settings)),
		Texts:       make(map[string]Text, len(s.Texts)),
		Constraints: make(map[string]constraint.Constraint, len(s.Constraints)),
		Status:      s.Status,
	}
	for k, v := range s.Settings {
		out.Settings[k] = v
	}
	for k, v := range s.Texts {
		out.Texts[k] = v
	}
	for k, v := range s.Constraints {
		if v.Type != nil {
			t := *v.Type
			v.Type = &t
		}
		if v.DateOfUpdate != nil {
			d := *v.DateOfUpdate
			v.DateOfUpdate = &d
		}
		out.Constraints[k] = v
	}
	if s.Status.Task != nil {
		task := *s.Status.Task
		out.Status.Task = &task
	}
	if s.Status.LastTask != nil {
		last := *s.Status.LastTask
		out.Status.LastTask = &last
	}
	out.Status.Warnings = append([]string(nil), s.Status.Warnings...)
	return out
}

// ArtifactKind names a per-iteration result file.
type ArtifactKind string

const (
	ArtifactModelization ArtifactKind = "modelization"
	ArtifactSampling     ArtifactKind = "sampling"
	ArtifactClustering   ArtifactKind = "clustering"
)

// FileName returns the artifact's file name for an iteration.
func (k ArtifactKind) FileName(iteration int) string {
	return string(k) + "_" + strconv.Itoa(iteration) + ".json"
}

// Artifact is a per-iteration result committed together with a snapshot.
type Artifact struct {
	Kind        ArtifactKind
	IterationID int
	Value       any
}

func artifactOf(kind TaskKind) ArtifactKind {
	switch kind {
	case TaskModelization:
		return ArtifactModelization
	case TaskSampling:
		return ArtifactSampling
	default:
		return ArtifactClustering
	}
}

// Modelization holds the vectors computed for an iteration.
type Modelization struct {
	IterationID    int                           `json:"iteration_id"`
	VectorizerType string                        `json:"vectorizer_type"`
	Vectors        map[string]map[string]float64 `json:"vectors"`
	CreatedAt      int64                         `json:"created_at"`
}

// Sampling lists the constraints created by a sampling task.
type Sampling struct {
	IterationID   int      `json:"iteration_id"`
	Algorithm     string   `json:"algorithm"`
	ConstraintIDs []string `json:"constraint_ids"`
	CreatedAt     int64    `json:"created_at"`
}

// Clustering holds the cluster label of every active text for an iteration.
type Clustering struct {
	IterationID int            `json:"iteration_id"`
	Algorithm   string         `json:"algorithm"`
	NbClusters  int            `json:"nb_clusters"`
	Labels      map[string]int `json:"labels"`
	CreatedAt   int64          `json:"created_at"`
}

// Job is a unit of background work handed to the scheduler.
type Job struct {
	ID          string
	ProjectID   string
	Kind        TaskKind
	IterationID int
}
