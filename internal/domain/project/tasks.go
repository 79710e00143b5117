package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpggio/clusterbench/internal/domain/activity"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
)

// ReasonInterrupted is the error reason of tasks lost to a process restart.
const ReasonInterrupted = "interrupted"

// BeginTask returns the snapshot a job computes from.
func (s *Service) BeginTask(ctx context.Context, job Job) (*Snapshot, error) {
	return s.Checkpoint(ctx, job, 0)
}

// Checkpoint persists task progress. It returns ErrTaskCanceled after restoring the
// pre-task state when cancellation was requested, and ErrTaskSuperseded when the
// project no longer runs this job.
func (s *Service) Checkpoint(ctx context.Context, job Job, progress int) (*Snapshot, error) {
	unlock := s.locks.Lock(job.ProjectID)
	defer unlock()

	snap, err := s.loadForTask(ctx, job)
	if err != nil {
		return nil, err
	}
	if snap.Status.Task.CancelRequested {
		return nil, s.finishCanceled(ctx, snap)
	}
	progress = min(max(progress, 0), 100)
	if progress > snap.Status.Task.Progress {
		snap.Status.Task.Progress = progress
		if err := s.commit(ctx, snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// ModelizationResult is the output of a modelization task.
type ModelizationResult struct {
	Preprocessed   map[string]string
	VectorizerType string
	Vectors        map[string]map[string]float64
}

// CompleteModelization stores the vectors of the job's iteration and leaves the working state.
func (s *Service) CompleteModelization(ctx context.Context, job Job, result ModelizationResult) (*Snapshot, error) {
	return s.complete(ctx, job, func(snap *Snapshot) (any, error) {
		for id, value := range result.Preprocessed {
			if t, ok := snap.Texts[id]; ok {
				t.Preprocessed = value
				snap.Texts[id] = t
			}
		}
		iteration := job.IterationID
		snap.Status.ModelizationIteration = iteration

		switch {
		case iteration == 0:
			snap.Status.State = StateClusteringTodo
		default:
			sampled, err := s.store.HasArtifact(ctx, job.ProjectID, ArtifactSampling, iteration)
			if err != nil {
				return nil, fmt.Errorf("checking sampling: %w", err)
			}
			switch {
			case !sampled:
				snap.Status.State = StateSamplingTodo
			case snap.PendingInIteration(iteration) > 0:
				snap.Status.State = StateAnnotationWithUpToDateModelization
			default:
				snap.Status.State = StateClusteringTodo
			}
		}
		return &Modelization{
			IterationID:    iteration,
			VectorizerType: result.VectorizerType,
			Vectors:        result.Vectors,
			CreatedAt:      s.nowMS(),
		}, nil
	})
}

// CompleteSampling inserts the sampled pairs as pending constraints.
func (s *Service) CompleteSampling(ctx context.Context, job Job, algorithm string, pairs [][2]string) (*Snapshot, error) {
	return s.complete(ctx, job, func(snap *Snapshot) (any, error) {
		ids := make([]string, 0, len(pairs))
		for _, pair := range pairs {
			a, b := constraint.Canonical(pair[0], pair[1])
			if a == b || requireActiveTexts(snap, a, b) != nil {
				continue
			}
			id := constraint.ID(a, b)
			if _, exists := snap.Constraints[id]; exists {
				continue
			}
			snap.Constraints[id] = constraint.New(a, b, job.IterationID)
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			snap.Status.State = StateClusteringTodo
		} else {
			snap.Status.State = StateSamplingPending
		}
		return &Sampling{
			IterationID:   job.IterationID,
			Algorithm:     algorithm,
			ConstraintIDs: ids,
			CreatedAt:     s.nowMS(),
		}, nil
	})
}

// CompleteClustering stores the labels of the job's iteration.
func (s *Service) CompleteClustering(ctx context.Context, job Job, algorithm string, labels map[string]int) (*Snapshot, error) {
	return s.complete(ctx, job, func(snap *Snapshot) (any, error) {
		clusters := make(map[int]bool)
		for _, l := range labels {
			clusters[l] = true
		}
		snap.Status.State = StateClusteringPending
		return &Clustering{
			IterationID: job.IterationID,
			Algorithm:   algorithm,
			NbClusters:  len(clusters),
			Labels:      labels,
			CreatedAt:   s.nowMS(),
		}, nil
	})
}

// complete commits the job's artifact with the post-task state, unless the task
// was canceled in the meantime.
func (s *Service) complete(ctx context.Context, job Job, apply func(snap *Snapshot) (any, error)) (*Snapshot, error) {
	unlock := s.locks.Lock(job.ProjectID)
	defer unlock()

	snap, err := s.loadForTask(ctx, job)
	if err != nil {
		return nil, err
	}
	if snap.Status.Task.CancelRequested {
		return nil, s.finishCanceled(ctx, snap)
	}

	value, err := apply(snap)
	if err != nil {
		return nil, err
	}
	last := s.finishTask(snap, OutcomeSucceeded)
	artifact := Artifact{Kind: artifactOf(job.Kind), IterationID: job.IterationID, Value: value}
	if err := s.commit(ctx, snap, artifact); err != nil {
		return nil, fmt.Errorf("committing %s result: %w", job.Kind, err)
	}
	s.logger.Info("task succeeded", "project_id", job.ProjectID, "task_id", job.ID, "kind", job.Kind, "duration_ms", last.DurationMS)
	s.recordTask(ctx, snap, job, activity.TypeTaskSucceeded, last, "")
	return snap, nil
}

// FailTask moves the project to the error state of the job's kind.
func (s *Service) FailTask(ctx context.Context, job Job, cause error) error {
	unlock := s.locks.Lock(job.ProjectID)
	defer unlock()

	snap, err := s.loadForTask(ctx, job)
	if err != nil {
		return err
	}
	if snap.Status.Task.CancelRequested {
		return s.finishCanceled(ctx, snap)
	}
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	snap.Status.State = failureState(job.Kind, job.IterationID)
	snap.Status.LastError = reason
	last := s.finishTask(snap, OutcomeFailed)
	if err := s.commit(ctx, snap); err != nil {
		return err
	}
	s.logger.Warn("task failed", "project_id", job.ProjectID, "task_id", job.ID, "kind", job.Kind, "error", reason)
	s.recordTask(ctx, snap, job, activity.TypeTaskFailed, last, reason)
	return nil
}

// RecoverInterrupted settles every project at startup: interrupted commits are
// completed, contradictory constraints are hidden with a warning, and a project
// left in a working state without a queued job moves to the error state of its
// task with reason "interrupted". It returns the ids of the interrupted projects.
func (s *Service) RecoverInterrupted(ctx context.Context) ([]string, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	var recovered []string
	for _, id := range ids {
		ok, err := s.recoverProject(ctx, id)
		if err != nil {
			s.logger.Error("failed to recover project", "project_id", id, "error", err)
			continue
		}
		if ok {
			recovered = append(recovered, id)
		}
	}
	return recovered, nil
}

func (s *Service) recoverProject(ctx context.Context, projectID string) (bool, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	if err := s.store.DiscardStaged(ctx, projectID); err != nil {
		return false, fmt.Errorf("discarding staged files: %w", err)
	}
	snap, err := s.load(ctx, projectID)
	if err != nil {
		return false, err
	}
	_, hidden := s.reconcileGraph(snap)
	state := snap.Status.State
	if !state.Working() || (s.scheduler != nil && s.scheduler.Pending(projectID)) {
		if len(hidden) == 0 {
			return false, nil
		}
		return false, s.commit(ctx, snap)
	}

	kind, _ := taskKindOf(state)
	iteration := snap.Status.IterationID
	if snap.Status.Task == nil {
		snap.Status.Task = &Task{Kind: kind, IterationID: iteration, StartedAt: snap.Metadata.ModifiedAt}
	}

	snap.Status.State = failureState(kind, iteration)
	snap.Status.LastError = ReasonInterrupted
	job := Job{ID: snap.Status.Task.ID, ProjectID: projectID, Kind: kind, IterationID: iteration}
	last := s.finishTask(snap, OutcomeInterrupted)
	if err := s.commit(ctx, snap); err != nil {
		return false, err
	}
	s.logger.Warn("recovered interrupted task", "project_id", projectID, "kind", kind, "state", snap.Status.State)
	s.recordTask(ctx, snap, job, activity.TypeTaskInterrupted, last, ReasonInterrupted)
	return true, nil
}

func (s *Service) loadForTask(ctx context.Context, job Job) (*Snapshot, error) {
	snap, err := s.load(ctx, job.ProjectID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrTaskSuperseded, err)
		}
		return nil, err
	}
	task := snap.Status.Task
	if !snap.Status.State.Working() || task == nil || task.ID != job.ID {
		return nil, ErrTaskSuperseded
	}
	return snap, nil
}

func (s *Service) finishCanceled(ctx context.Context, snap *Snapshot) error {
	task := *snap.Status.Task
	previous := task.PreviousState
	if !previous.Valid() || previous.Working() {
		previous = failureState(task.Kind, task.IterationID)
	}
	snap.Status.State = previous
	last := s.finishTask(snap, OutcomeCanceled)
	if err := s.commit(ctx, snap); err != nil {
		return err
	}
	s.logger.Info("task canceled", "project_id", snap.Metadata.ID, "task_id", task.ID, "kind", task.Kind)
	job := Job{ID: task.ID, ProjectID: snap.Metadata.ID, Kind: task.Kind, IterationID: task.IterationID}
	s.recordTask(ctx, snap, job, activity.TypeTaskCanceled, last, "")
	return ErrTaskCanceled
}

func (s *Service) finishTask(snap *Snapshot, outcome TaskOutcome) LastTask {
	now := s.nowMS()
	last := LastTask{Outcome: outcome, FinishedAt: now}
	if task := snap.Status.Task; task != nil {
		last.Kind = task.Kind
		last.DurationMS = max(now-task.StartedAt, 0)
	}
	snap.Status.Task = nil
	snap.Status.LastTask = &last
	return last
}

func (s *Service) recordTask(ctx context.Context, snap *Snapshot, job Job, typ activity.ActivityType, last LastTask, reason string) {
	duration := last.DurationMS
	details := ""
	if reason != "" {
		if data, err := json.Marshal(map[string]string{"reason": reason}); err == nil {
			details = string(data)
		}
	}
	s.activity.Record(ctx, &activity.ActivityEntry{
		ProjectID:    job.ProjectID,
		ActivityType: typ,
		Summary:      fmt.Sprintf("%s %s", job.Kind, last.Outcome),
		Details:      details,
		IterationID:  job.IterationID,
		DurationMS:   &duration,
		Version:      snap.Metadata.Version,
	})
}
