package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/repository"
)

// Service implements the project actions, queries and the commit side of background tasks.
type Service struct {
	store     Store
	locks     *Locks
	scheduler Scheduler
	activity  *activity.Service
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new project service. activities may be nil.
func NewService(store Store, scheduler Scheduler, activities *activity.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		locks:     NewLocks(),
		scheduler: scheduler,
		activity:  activities,
		logger:    logger.With("component", "project"),
		now:       time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) nowMS() int64 {
	return s.now().UnixMilli()
}

// mutation edits a freshly loaded snapshot. Returning an error discards the edit;
// errNoChange reports success without a commit.
type mutation func(snap *Snapshot, g *constraint.Graph) error

var errNoChange = errors.New("no change")

// mutate runs fn under the project lock against the latest snapshot and commits the result.
func (s *Service) mutate(ctx context.Context, projectID string, fn mutation) (*Snapshot, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()
	return s.mutateLocked(ctx, projectID, fn)
}

func (s *Service) mutateLocked(ctx context.Context, projectID string, fn mutation) (*Snapshot, error) {
	snap, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	g, _ := s.reconcileGraph(snap)
	if err := fn(snap, g); err != nil {
		if errors.Is(err, errNoChange) {
			return snap, nil
		}
		return nil, err
	}
	if err := s.commit(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// reconcileGraph rebuilds the constraint graph and force-hides constraints that
// contradict older ones. It returns the ids it hid.
func (s *Service) reconcileGraph(snap *Snapshot) (*constraint.Graph, []string) {
	g, hidden := hideContradictions(snap)
	for _, id := range hidden {
		s.logger.Warn("constraint graph contradiction", "project_id", snap.Metadata.ID, "constraint_id", id)
	}
	return g, hidden
}

// hideContradictions hides, in snap only, every active constraint that contradicts
// older ones and adds a warning for each.
func hideContradictions(snap *Snapshot) (*constraint.Graph, []string) {
	g, conflicts := constraint.Rebuild(snap.ConstraintList())
	for _, id := range conflicts {
		c := snap.Constraints[id]
		c.IsHidden = true
		snap.Constraints[id] = c
		snap.Status.Warnings = append(snap.Status.Warnings,
			fmt.Sprintf("constraint %s contradicts older constraints and was hidden", id))
	}
	return g, conflicts
}

func (s *Service) load(ctx context.Context, projectID string) (*Snapshot, error) {
	snap, err := s.store.Load(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("loading project: %w", err)
	}
	return snap, nil
}

func (s *Service) commit(ctx context.Context, snap *Snapshot, artifacts ...Artifact) error {
	snap.Metadata.ModifiedAt = s.nowMS()
	if err := s.store.Commit(ctx, snap, artifacts...); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return ErrConflict
		case errors.Is(err, repository.ErrNotFound):
			return ErrProjectNotFound
		}
		return fmt.Errorf("committing project: %w", err)
	}
	return nil
}

func (s *Service) record(ctx context.Context, snap *Snapshot, typ activity.ActivityType, subject *string, summary string) {
	s.activity.Record(ctx, &activity.ActivityEntry{
		ProjectID:    snap.Metadata.ID,
		Subject:      subject,
		ActivityType: typ,
		Summary:      summary,
		IterationID:  snap.Status.IterationID,
		Version:      snap.Metadata.Version,
	})
}

// CreateRequest defines project creation inputs.
type CreateRequest struct {
	ID   string `json:"project_id"`
	Name string `json:"name"`
}

// CreateProject creates an empty project with default settings for iteration 0.
func (s *Service) CreateProject(ctx context.Context, req CreateRequest) (*Snapshot, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrBadRequest)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = slug(name) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}
	if !constraint.ValidID(id) {
		return nil, fmt.Errorf("%w: invalid project id %q", ErrBadRequest, id)
	}

	snap := NewSnapshot(id, name, s.nowMS())
	if err := s.store.Create(ctx, snap); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return nil, fmt.Errorf("project %q %w", id, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.logger.Info("project created", "project_id", id)
	s.record(ctx, snap, activity.TypeProjectCreated, nil, "created project "+name)
	return snap, nil
}

// RenameProject changes the display name of a project.
func (s *Service) RenameProject(ctx context.Context, projectID, name string) (*Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrBadRequest)
	}
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		if err := guard(ActionRenameProject, snap.Status.State); err != nil {
			return err
		}
		snap.Metadata.Name = name
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, snap, activity.TypeProjectRenamed, nil, "renamed project to "+name)
	return snap, nil
}

// DeleteProject removes a project and its history. A running task blocks deletion.
func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	snap, err := s.load(ctx, projectID)
	if err != nil {
		return err
	}
	if err := guard(ActionDeleteProject, snap.Status.State); err != nil {
		return err
	}
	if s.scheduler != nil && s.scheduler.Pending(projectID) {
		return badState(string(ActionDeleteProject)+" with a queued task", snap.Status.State)
	}
	if err := s.store.Delete(ctx, projectID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProjectNotFound
		}
		return fmt.Errorf("deleting project: %w", err)
	}
	if s.activity != nil {
		if err := s.activity.ForgetProject(ctx, projectID); err != nil {
			s.logger.Warn("failed to delete project history", "project_id", projectID, "error", err)
		}
	}
	s.logger.Info("project deleted", "project_id", projectID)
	return nil
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 32 {
			break
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "project"
	}
	return out
}
