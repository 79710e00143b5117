package project

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
)

// EditSettings applies an update to the settings of the current iteration.
func (s *Service) EditSettings(ctx context.Context, projectID string, update SettingsUpdate) (*Snapshot, error) {
	if update.Empty() {
		return nil, fmt.Errorf("%w: empty settings update", ErrBadRequest)
	}
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		iteration := snap.Status.IterationID
		current := snap.CurrentSettings()
		next, err := update.Apply(current)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}

		change := diffSettings(current, next)
		if !change.modelization && !change.task && !change.global {
			return errNoChange
		}

		state := snap.Status.State
		if change.modelization || change.task {
			if err := guard(ActionEditSettings, state); err != nil {
				return err
			}
		} else if err := guard(ActionEditGlobalSettings, state); err != nil {
			return err
		}

		if change.modelization {
			invalidated, ok := invalidateModelization(state, iteration)
			if !ok {
				return badState("modelization settings change", state)
			}
			snap.Status.State = invalidated
		}
		if change.global && state == StateIterationEnd && next.MaxIterationForAnnotation > iteration {
			snap.Status.State = StateClusteringPending
		}
		snap.Settings[iteration] = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, snap, activity.TypeSettingsUpdated, nil, fmt.Sprintf("updated settings of iteration %d", snap.Status.IterationID))
	return snap, nil
}

// RunModelization queues preprocessing and vectorization of the active texts.
func (s *Service) RunModelization(ctx context.Context, projectID string) (*Snapshot, error) {
	return s.runTask(ctx, projectID, TaskModelization, ActionRunModelization, func(snap *Snapshot) error {
		if len(snap.ActiveTexts()) == 0 {
			return fmt.Errorf("%w: project has no texts", ErrBadState)
		}
		return nil
	})
}

// RunSampling queues the selection of text pairs to annotate.
func (s *Service) RunSampling(ctx context.Context, projectID string) (*Snapshot, error) {
	return s.runTask(ctx, projectID, TaskSampling, ActionRunSampling, requireModelization)
}

// RunClustering queues a constrained clustering of the current iteration.
func (s *Service) RunClustering(ctx context.Context, projectID string) (*Snapshot, error) {
	return s.runTask(ctx, projectID, TaskClustering, ActionRunClustering, requireModelization)
}

func requireModelization(snap *Snapshot) error {
	if snap.Status.ModelizationIteration < 0 {
		return fmt.Errorf("%w: project has no modelization", ErrBadState)
	}
	if len(snap.ActiveTexts()) == 0 {
		return fmt.Errorf("%w: project has no texts", ErrBadState)
	}
	return nil
}

func (s *Service) runTask(ctx context.Context, projectID string, kind TaskKind, action Action, check func(snap *Snapshot) error) (*Snapshot, error) {
	if s.scheduler == nil {
		return nil, fmt.Errorf("%w: no task runner configured", ErrTaskFailed)
	}
	var job Job
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		if err := guard(action, snap.Status.State); err != nil {
			return err
		}
		if err := check(snap); err != nil {
			return err
		}
		job = Job{
			ID:          uuid.NewString(),
			ProjectID:   projectID,
			Kind:        kind,
			IterationID: snap.Status.IterationID,
		}
		snap.Status.Task = &Task{
			ID:            job.ID,
			Kind:          kind,
			IterationID:   job.IterationID,
			PreviousState: snap.Status.State,
			StartedAt:     s.nowMS(),
		}
		snap.Status.State = workingStateFor(kind, job.IterationID)
		snap.Status.LastError = ""
		// The runner blocks on the project lock until this commit lands.
		if err := s.scheduler.Enqueue(job); err != nil {
			return fmt.Errorf("%w: enqueue %s: %v", ErrTaskFailed, kind, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("task queued", "project_id", projectID, "task_id", job.ID, "kind", kind, "iteration_id", job.IterationID)
	s.record(ctx, snap, activity.TypeTaskQueued, nil, fmt.Sprintf("queued %s", kind))
	return snap, nil
}

// StartIteration opens the next annotation iteration, or ends the workflow
// when the iteration cap is reached.
func (s *Service) StartIteration(ctx context.Context, projectID string) (*Snapshot, error) {
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		if err := guard(ActionStartIteration, snap.Status.State); err != nil {
			return err
		}
		settings := snap.CurrentSettings()
		next := snap.Status.IterationID + 1
		if next > settings.MaxIterationForAnnotation {
			snap.Status.State = StateIterationEnd
			return nil
		}
		snap.Settings[next] = settings
		snap.Status.IterationID = next
		snap.Status.State = StateSamplingTodo
		snap.Status.Warnings = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("started iteration %d", snap.Status.IterationID)
	if snap.Status.State == StateIterationEnd {
		summary = "reached the iteration cap"
	}
	s.record(ctx, snap, activity.TypeIterationStarted, nil, summary)
	return snap, nil
}

// CancelTask asks the running task of a project to stop at its next checkpoint.
func (s *Service) CancelTask(ctx context.Context, projectID string) (*Snapshot, error) {
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		if err := guard(ActionCancelTask, snap.Status.State); err != nil {
			return err
		}
		if snap.Status.Task == nil {
			return fmt.Errorf("%w: no task recorded", ErrBadState)
		}
		if snap.Status.Task.CancelRequested {
			return errNoChange
		}
		snap.Status.Task.CancelRequested = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(projectID)
	}
	s.logger.Info("task cancel requested", "project_id", projectID)
	return snap, nil
}

// DeleteLastIteration rolls the project back to the clustering of the previous
// iteration. From ITERATION_END it only reopens the current iteration.
func (s *Service) DeleteLastIteration(ctx context.Context, projectID string) (*Snapshot, error) {
	removed := -1
	snap, err := s.mutate(ctx, projectID, func(snap *Snapshot, _ *constraint.Graph) error {
		state := snap.Status.State
		if err := guard(ActionDeleteLastIteration, state); err != nil {
			return err
		}
		if state == StateIterationEnd {
			snap.Status.State = StateClusteringPending
			return nil
		}
		iteration := snap.Status.IterationID
		if iteration == 0 {
			return fmt.Errorf("%w: iteration 0 cannot be deleted", ErrBadState)
		}

		delete(snap.Settings, iteration)
		for id, c := range snap.Constraints {
			if c.IterationOfSampling == iteration {
				delete(snap.Constraints, id)
			}
		}
		snap.Status.IterationID = iteration - 1
		snap.Status.State = StateClusteringPending
		snap.Status.Warnings = nil
		if snap.Status.ModelizationIteration >= iteration {
			latest, err := s.latestModelization(ctx, projectID, iteration-1)
			if err != nil {
				return err
			}
			snap.Status.ModelizationIteration = latest
		}
		removed = iteration
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removed >= 0 {
		for _, kind := range []ArtifactKind{ArtifactModelization, ArtifactSampling, ArtifactClustering} {
			if err := s.store.RemoveArtifact(ctx, projectID, kind, removed); err != nil {
				s.logger.Warn("failed to remove artifact", "project_id", projectID, "kind", kind, "iteration_id", removed, "error", err)
			}
		}
	}
	s.record(ctx, snap, activity.TypeIterationDeleted, nil, fmt.Sprintf("rolled back to iteration %d", snap.Status.IterationID))
	return snap, nil
}

// latestModelization returns the highest iteration up to upTo with a modelization artifact, or -1.
func (s *Service) latestModelization(ctx context.Context, projectID string, upTo int) (int, error) {
	for i := upTo; i >= 0; i-- {
		ok, err := s.store.HasArtifact(ctx, projectID, ArtifactModelization, i)
		if err != nil {
			return -1, fmt.Errorf("checking modelization: %w", err)
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}
