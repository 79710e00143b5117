// Package runner executes background tasks off the request path.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/rpggio/clusterbench/internal/clustering"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/observability"
)

var (
	// ErrNotStarted is returned by Enqueue before Start.
	ErrNotStarted = errors.New("runner not started")
	// ErrStopped is returned by Enqueue after Shutdown.
	ErrStopped = errors.New("runner stopped")
)

// Host is the project side of a task: it loads inputs and commits outcomes.
type Host interface {
	BeginTask(ctx context.Context, job project.Job) (*project.Snapshot, error)
	Checkpoint(ctx context.Context, job project.Job, progress int) (*project.Snapshot, error)
	CompleteModelization(ctx context.Context, job project.Job, result project.ModelizationResult) (*project.Snapshot, error)
	CompleteSampling(ctx context.Context, job project.Job, algorithm string, pairs [][2]string) (*project.Snapshot, error)
	CompleteClustering(ctx context.Context, job project.Job, algorithm string, labels map[string]int) (*project.Snapshot, error)
	FailTask(ctx context.Context, job project.Job, cause error) error
	GetModelization(ctx context.Context, projectID string, iteration *int) (*project.Modelization, error)
	GetClustering(ctx context.Context, projectID string, iteration *int) (*project.Clustering, error)
}

// Options configure a Runner.
type Options struct {
	// Workers bounds the number of tasks running at once. Zero means runtime.NumCPU().
	Workers int
}

// Task outcomes reported in metrics and logs.
const (
	outcomeSucceeded   = "succeeded"
	outcomeFailed      = "failed"
	outcomeCanceled    = "canceled"
	outcomeSuperseded  = "superseded"
	outcomeInterrupted = "interrupted"
)

type worker struct {
	queue  []project.Job
	cancel context.CancelFunc
}

// Runner runs at most one job per project at a time, in FIFO order, with a
// global bound on concurrent jobs.
type Runner struct {
	lib    clustering.Library
	logger *slog.Logger
	sem    *semaphore.Weighted
	tracer trace.Tracer

	mu      sync.Mutex
	host    Host
	ctx     context.Context
	stop    context.CancelFunc
	stopped bool
	workers map[string]*worker
	wg      sync.WaitGroup
}

// New creates a runner. It accepts jobs once Start is called.
func New(lib clustering.Library, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	n := opts.Workers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Runner{
		lib:     lib,
		logger:  logger.With("component", "runner"),
		sem:     semaphore.NewWeighted(int64(n)),
		tracer:  otel.Tracer("github.com/rpggio/clusterbench/internal/runner"),
		workers: make(map[string]*worker),
	}
}

// Start binds the runner to its host. Jobs run until ctx is done or Shutdown is called.
func (r *Runner) Start(ctx context.Context, host Host) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.host = host
	r.ctx, r.stop = context.WithCancel(ctx)
}

// Enqueue appends job to its project's queue.
func (r *Runner) Enqueue(job project.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.stopped:
		return ErrStopped
	case r.host == nil:
		return ErrNotStarted
	}

	w, ok := r.workers[job.ProjectID]
	if !ok {
		w = &worker{}
		r.workers[job.ProjectID] = w
		r.wg.Add(1)
		go r.drain(job.ProjectID, w)
	}
	w.queue = append(w.queue, job)
	r.logger.Debug("job enqueued", "project_id", job.ProjectID, "task_id", job.ID, "kind", job.Kind)
	return nil
}

// Cancel interrupts the running job of a project. The host decides the outcome
// from the project's cancel flag.
func (r *Runner) Cancel(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[projectID]; ok && w.cancel != nil {
		w.cancel()
	}
}

// Pending reports whether a job of the project is queued or running.
func (r *Runner) Pending(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[projectID]
	return ok
}

// Shutdown stops accepting jobs, cancels running ones and waits for them to return.
// Projects left in a working state are recovered on the next start.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.stopped = true
	if r.stop != nil {
		r.stop()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for tasks: %w", ctx.Err())
	}
}

// drain runs the queued jobs of one project until its queue is empty.
func (r *Runner) drain(projectID string, w *worker) {
	defer r.wg.Done()
	for {
		r.mu.Lock()
		if len(w.queue) == 0 || r.ctx.Err() != nil {
			delete(r.workers, projectID)
			r.mu.Unlock()
			return
		}
		job := w.queue[0]
		w.queue = w.queue[1:]
		base := r.ctx
		r.mu.Unlock()

		if err := r.sem.Acquire(base, 1); err != nil {
			r.mu.Lock()
			delete(r.workers, projectID)
			r.mu.Unlock()
			return
		}
		jobCtx, cancel := context.WithCancel(base)
		r.mu.Lock()
		w.cancel = cancel
		r.mu.Unlock()

		r.run(jobCtx, job)

		r.mu.Lock()
		w.cancel = nil
		r.mu.Unlock()
		cancel()
		r.sem.Release(1)
	}
}

func (r *Runner) run(ctx context.Context, job project.Job) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "runner."+string(job.Kind), trace.WithAttributes(
		attribute.String("project_id", job.ProjectID),
		attribute.String("task_id", job.ID),
		attribute.Int("iteration_id", job.IterationID),
	))
	defer span.End()

	observability.TasksRunning.Inc()
	defer observability.TasksRunning.Dec()

	r.logger.Info("task started", "project_id", job.ProjectID, "task_id", job.ID, "kind", job.Kind, "iteration_id", job.IterationID)
	outcome, err := r.execute(ctx, job)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.TasksTotal.WithLabelValues(string(job.Kind), outcome).Inc()
	observability.TaskDuration.WithLabelValues(string(job.Kind)).Observe(elapsed.Seconds())
	r.logger.Info("task finished", "project_id", job.ProjectID, "task_id", job.ID, "kind", job.Kind,
		"outcome", outcome, "duration_ms", elapsed.Milliseconds())
}

// execute runs the job and maps its result to an outcome. Host calls use a
// context detached from cancellation so the outcome can still be committed.
func (r *Runner) execute(ctx context.Context, job project.Job) (outcome string, err error) {
	hostCtx := context.WithoutCancel(ctx)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("task panicked", "project_id", job.ProjectID, "task_id", job.ID, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
			outcome = r.fail(hostCtx, job, err)
		}
	}()

	switch job.Kind {
	case project.TaskModelization:
		err = r.modelize(ctx, hostCtx, job)
	case project.TaskSampling:
		err = r.sample(ctx, hostCtx, job)
	case project.TaskClustering:
		err = r.cluster(ctx, hostCtx, job)
	default:
		err = fmt.Errorf("unknown task kind %q", job.Kind)
	}

	switch {
	case err == nil:
		return outcomeSucceeded, nil
	case errors.Is(err, project.ErrTaskCanceled):
		return outcomeCanceled, nil
	case errors.Is(err, project.ErrTaskSuperseded):
		r.logger.Warn("task superseded", "project_id", job.ProjectID, "task_id", job.ID)
		return outcomeSuperseded, nil
	case r.shuttingDown():
		return outcomeInterrupted, err
	}
	return r.fail(hostCtx, job, err), err
}

func (r *Runner) fail(ctx context.Context, job project.Job, cause error) string {
	if r.shuttingDown() {
		return outcomeInterrupted
	}
	err := r.host.FailTask(ctx, job, cause)
	switch {
	case err == nil:
		return outcomeFailed
	case errors.Is(err, project.ErrTaskCanceled):
		return outcomeCanceled
	case errors.Is(err, project.ErrTaskSuperseded):
		return outcomeSuperseded
	}
	r.logger.Error("failed to record task failure", "project_id", job.ProjectID, "task_id", job.ID, "error", err)
	return outcomeFailed
}

func (r *Runner) shuttingDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped || r.ctx.Err() != nil
}
