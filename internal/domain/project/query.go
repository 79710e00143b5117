package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/repository"
)

// Queries read the latest committed snapshot and never take the project lock.

// ProjectSummary is a lightweight representation for listing.
type ProjectSummary struct {
	ID          string `json:"project_id"`
	Name        string `json:"name"`
	State       State  `json:"state"`
	IterationID int    `json:"iteration_id"`
	TextCount   int    `json:"text_count"`
	CreatedAt   int64  `json:"created_at"`
	ModifiedAt  int64  `json:"modified_at"`
	Version     int64  `json:"version"`
}

// StatusView is the polling payload of a project.
type StatusView struct {
	ProjectID             string    `json:"project_id"`
	Name                  string    `json:"name"`
	State                 State     `json:"state"`
	Kind                  StateKind `json:"kind"`
	IterationID           int       `json:"iteration_id"`
	ModelizationIteration int       `json:"modelization_iteration"`
	Task                  *Task     `json:"task"`
	LastError             string    `json:"last_error,omitempty"`
	LastTask              *LastTask `json:"last_task,omitempty"`
	Warnings              []string  `json:"warnings,omitempty"`
	PendingConstraints    int       `json:"pending_constraints"`
	Version               int64     `json:"version"`
}

// NewStatusView summarises a snapshot's status.
func NewStatusView(snap *Snapshot) StatusView {
	return StatusView{
		ProjectID:             snap.Metadata.ID,
		Name:                  snap.Metadata.Name,
		State:                 snap.Status.State,
		Kind:                  snap.Status.State.Kind(),
		IterationID:           snap.Status.IterationID,
		ModelizationIteration: snap.Status.ModelizationIteration,
		Task:                  snap.Status.Task,
		LastError:             snap.Status.LastError,
		LastTask:              snap.Status.LastTask,
		Warnings:              snap.Status.Warnings,
		PendingConstraints:    snap.PendingInIteration(snap.Status.IterationID),
		Version:               snap.Metadata.Version,
	}
}

// ListProjects returns a summary of every readable project, sorted by id.
func (s *Service) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	out := make([]ProjectSummary, 0, len(ids))
	for _, id := range ids {
		snap, err := s.store.Load(ctx, id)
		if err != nil {
			s.logger.Warn("skipping unreadable project", "project_id", id, "error", err)
			continue
		}
		out = append(out, ProjectSummary{
			ID:          snap.Metadata.ID,
			Name:        snap.Metadata.Name,
			State:       snap.Status.State,
			IterationID: snap.Status.IterationID,
			TextCount:   len(snap.ActiveTexts()),
			CreatedAt:   snap.Metadata.CreatedAt,
			ModifiedAt:  snap.Metadata.ModifiedAt,
			Version:     snap.Metadata.Version,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// loadReconciled loads a snapshot and applies, without committing, the hiding
// of contradictory constraints that the next action would commit.
func (s *Service) loadReconciled(ctx context.Context, projectID string) (*Snapshot, error) {
	snap, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	hideContradictions(snap)
	return snap, nil
}

// GetProject returns the latest snapshot of a project.
func (s *Service) GetProject(ctx context.Context, projectID string) (*Snapshot, error) {
	return s.loadReconciled(ctx, projectID)
}

// GetStatus returns the workflow status of a project.
func (s *Service) GetStatus(ctx context.Context, projectID string) (StatusView, error) {
	snap, err := s.loadReconciled(ctx, projectID)
	if err != nil {
		return StatusView{}, err
	}
	return NewStatusView(snap), nil
}

// GetSettings returns the settings of an iteration, or of the current one when iteration is nil.
func (s *Service) GetSettings(ctx context.Context, projectID string, iteration *int) (Settings, error) {
	snap, err := s.load(ctx, projectID)
	if err != nil {
		return Settings{}, err
	}
	i := snap.Status.IterationID
	if iteration != nil {
		i = *iteration
	}
	settings, ok := snap.Settings[i]
	if !ok {
		return Settings{}, fmt.Errorf("settings of iteration %d %w", i, ErrNotFound)
	}
	return settings, nil
}

// GetTexts lists the texts of a project sorted by id.
func (s *Service) GetTexts(ctx context.Context, projectID string, includeDeleted bool) ([]Text, error) {
	snap, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !includeDeleted {
		return snap.ActiveTexts(), nil
	}
	out := make([]Text, 0, len(snap.Texts))
	for _, t := range snap.Texts {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ConstraintFilter selects constraints. Nil fields match everything.
type ConstraintFilter struct {
	IterationOfSampling *int
	// Type is "MUST_LINK", "CANNOT_LINK" or "null".
	Type     *string
	ToReview *bool
	Hidden   *bool
}

func (f ConstraintFilter) match(c constraint.Constraint) bool {
	if f.IterationOfSampling != nil && c.IterationOfSampling != *f.IterationOfSampling {
		return false
	}
	if f.Type != nil {
		if *f.Type == "null" {
			if c.Type != nil {
				return false
			}
		} else if c.Type == nil || string(*c.Type) != *f.Type {
			return false
		}
	}
	if f.ToReview != nil && c.ToReview != *f.ToReview {
		return false
	}
	if f.Hidden != nil && c.IsHidden != *f.Hidden {
		return false
	}
	return true
}

// GetConstraints lists the constraints matching filter, sorted by id.
func (s *Service) GetConstraints(ctx context.Context, projectID string, filter ConstraintFilter) ([]constraint.Constraint, error) {
	snap, err := s.loadReconciled(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if filter.Type != nil && *filter.Type != "null" {
		if err := constraint.Type(*filter.Type).Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}
	var out []constraint.Constraint
	for _, c := range snap.ConstraintList() {
		if filter.match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// Implied returns the relation the constraint graph derives between two texts.
func (s *Service) Implied(ctx context.Context, projectID, a, b string) (constraint.Implication, error) {
	snap, err := s.load(ctx, projectID)
	if err != nil {
		return "", err
	}
	for _, id := range []string{a, b} {
		if _, ok := snap.Texts[id]; !ok {
			return "", fmt.Errorf("%w: %s", ErrTextNotFound, id)
		}
	}
	g, _ := constraint.Rebuild(snap.ConstraintList())
	return g.Implied(a, b), nil
}

// GetModelization returns the vectors of an iteration, defaulting to the current modelization.
func (s *Service) GetModelization(ctx context.Context, projectID string, iteration *int) (*Modelization, error) {
	var out Modelization
	if err := s.readArtifact(ctx, projectID, ArtifactModelization, iteration, &out, func(snap *Snapshot) int {
		return snap.Status.ModelizationIteration
	}); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSampling returns the sampling result of an iteration, defaulting to the current one.
func (s *Service) GetSampling(ctx context.Context, projectID string, iteration *int) (*Sampling, error) {
	var out Sampling
	if err := s.readArtifact(ctx, projectID, ArtifactSampling, iteration, &out, currentIteration); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetClustering returns the clustering result of an iteration, defaulting to the current one.
func (s *Service) GetClustering(ctx context.Context, projectID string, iteration *int) (*Clustering, error) {
	var out Clustering
	if err := s.readArtifact(ctx, projectID, ArtifactClustering, iteration, &out, currentIteration); err != nil {
		return nil, err
	}
	return &out, nil
}

func currentIteration(snap *Snapshot) int {
	return snap.Status.IterationID
}

func (s *Service) readArtifact(ctx context.Context, projectID string, kind ArtifactKind, iteration *int, v any, fallback func(*Snapshot) int) error {
	i := 0
	if iteration != nil {
		i = *iteration
		if i < 0 {
			return fmt.Errorf("%w: negative iteration", ErrBadRequest)
		}
	} else {
		snap, err := s.load(ctx, projectID)
		if err != nil {
			return err
		}
		i = fallback(snap)
		if i < 0 {
			return fmt.Errorf("%w: no %s yet", ErrArtifactNotFound, kind)
		}
	}
	if err := s.store.ReadArtifact(ctx, projectID, kind, i, v); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			if _, loadErr := s.load(ctx, projectID); loadErr != nil {
				return loadErr
			}
			return fmt.Errorf("%w: %s of iteration %d", ErrArtifactNotFound, kind, i)
		}
		return fmt.Errorf("reading %s: %w", kind, err)
	}
	return nil
}

// DownloadProject writes a zip archive of the project directory.
func (s *Service) DownloadProject(ctx context.Context, projectID string, w io.Writer) error {
	if _, err := s.load(ctx, projectID); err != nil {
		return err
	}
	if err := s.store.Archive(ctx, projectID, w); err != nil {
		return fmt.Errorf("archiving project: %w", err)
	}
	return nil
}

// DownloadFile returns one file of the project directory, such as
// "settings.json" or "clustering_0.json".
func (s *Service) DownloadFile(ctx context.Context, projectID, name string) ([]byte, error) {
	if _, err := s.load(ctx, projectID); err != nil {
		return nil, err
	}
	data, err := s.store.OpenFile(ctx, projectID, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: file %q", ErrArtifactNotFound, name)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// GetHistory lists the most recent activity of a project.
func (s *Service) GetHistory(ctx context.Context, projectID string, limit int) ([]activity.ActivityEntry, error) {
	if _, err := s.load(ctx, projectID); err != nil {
		return nil, err
	}
	if s.activity == nil {
		return []activity.ActivityEntry{}, nil
	}
	return s.activity.GetRecentActivity(ctx, activity.ListActivityOptions{ProjectID: projectID, Limit: limit})
}
