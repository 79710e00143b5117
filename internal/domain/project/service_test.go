package project_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/domain/project"
	"github.com/rpggio/clusterbench/internal/filestore"
	"github.com/rpggio/clusterbench/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type harness struct {
	svc   *project.Service
	store *filestore.Store
	sched *mocks.Scheduler
	jobs  []project.Job
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := filestore.New(t.TempDir(), nil)
	require.NoError(t, err)

	h := &harness{store: store, sched: &mocks.Scheduler{}}
	h.sched.On("Enqueue", mock.Anything).Run(func(args mock.Arguments) {
		h.jobs = append(h.jobs, args.Get(0).(project.Job))
	}).Return(nil)
	h.sched.On("Cancel", mock.Anything).Return()
	h.sched.On("Pending", mock.Anything).Return(false)
	h.svc = project.NewService(store, h.sched, nil, nil)
	return h
}

func (h *harness) lastJob(t *testing.T) project.Job {
	t.Helper()
	require.NotEmpty(t, h.jobs)
	return h.jobs[len(h.jobs)-1]
}

// clustered creates p1 with four texts, modelized and clustered at iteration 0.
func (h *harness) clustered(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.CreateProject(ctx, project.CreateRequest{ID: "p1", Name: "Test"})
	require.NoError(t, err)
	_, err = h.svc.ImportTexts(ctx, "p1", []project.TextInput{
		{ID: "t0", Text: "alpha"},
		{ID: "t1", Text: "beta"},
		{ID: "t2", Text: "gamma"},
		{ID: "t3", Text: "delta"},
	})
	require.NoError(t, err)

	_, err = h.svc.RunModelization(ctx, "p1")
	require.NoError(t, err)
	snap, err := h.svc.CompleteModelization(ctx, h.lastJob(t), project.ModelizationResult{
		VectorizerType: "tfidf",
		Vectors: map[string]map[string]float64{
			"t0": {"alpha": 1}, "t1": {"beta": 1}, "t2": {"gamma": 1}, "t3": {"delta": 1},
		},
	})
	require.NoError(t, err)
	require.Equal(t, project.StateClusteringTodo, snap.Status.State)

	h.cluster(t)
}

func (h *harness) cluster(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	_, err := h.svc.RunClustering(ctx, "p1")
	require.NoError(t, err)
	snap, err := h.svc.CompleteClustering(ctx, h.lastJob(t), "kmeans", map[string]int{"t0": 0, "t1": 0, "t2": 1, "t3": 1})
	require.NoError(t, err)
	require.Equal(t, project.StateClusteringPending, snap.Status.State)
}

// sampled opens the next iteration and samples the given pairs.
func (h *harness) sampled(t *testing.T, pairs ...[2]string) *project.Snapshot {
	t.Helper()
	ctx := context.Background()
	snap, err := h.svc.StartIteration(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, project.StateSamplingTodo, snap.Status.State)

	_, err = h.svc.RunSampling(ctx, "p1")
	require.NoError(t, err)
	snap, err = h.svc.CompleteSampling(ctx, h.lastJob(t), "random", pairs)
	require.NoError(t, err)
	return snap
}

func mustLink() *constraint.Type   { return constraint.TypePtr(constraint.MustLink) }
func cannotLink() *constraint.Type { return constraint.TypePtr(constraint.CannotLink) }

func TestAllowed(t *testing.T) {
	cases := []struct {
		action project.Action
		state  project.State
		want   bool
	}{
		{project.ActionImportTexts, project.StateInitializationWithoutModelization, true},
		{project.ActionImportTexts, project.StateClusteringTodo, false},
		{project.ActionRunModelization, project.StateAnnotationWithOutdatedModelization, true},
		{project.ActionRunModelization, project.StateSamplingTodo, false},
		{project.ActionRunSampling, project.StateSamplingTodo, true},
		{project.ActionAnnotate, project.StateSamplingPending, true},
		{project.ActionAnnotate, project.StateClusteringTodo, false},
		{project.ActionApproveConstraints, project.StateClusteringTodo, true},
		{project.ActionRunClustering, project.StateClusteringWithErrors, true},
		{project.ActionStartIteration, project.StateClusteringPending, true},
		{project.ActionStartIteration, project.StateIterationEnd, false},
		{project.ActionCancelTask, project.StateSamplingWorking, true},
		{project.ActionCancelTask, project.StateSamplingTodo, false},
		{project.ActionEditSettings, project.StateClusteringPending, false},
		{project.ActionEditGlobalSettings, project.StateIterationEnd, true},
		{project.ActionDeleteProject, project.StateClusteringWorking, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, project.Allowed(tc.action, tc.state), "%s in %s", tc.action, tc.state)
	}
}

func TestCreateProject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.CreateProject(ctx, project.CreateRequest{Name: "  "})
	require.ErrorIs(t, err, project.ErrBadRequest)

	snap, err := h.svc.CreateProject(ctx, project.CreateRequest{Name: "My Corpus"})
	require.NoError(t, err)
	require.Regexp(t, `^my-corpus-[0-9a-f]{8}$`, snap.Metadata.ID)
	require.Equal(t, project.StateInitializationWithoutModelization, snap.Status.State)
	require.Equal(t, project.DefaultSettings(), snap.Settings[0])

	_, err = h.svc.CreateProject(ctx, project.CreateRequest{ID: snap.Metadata.ID, Name: "Again"})
	require.ErrorIs(t, err, project.ErrAlreadyExists)

	_, err = h.svc.GetStatus(ctx, "missing")
	require.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestImportTexts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.CreateProject(ctx, project.CreateRequest{ID: "p1", Name: "Test"})
	require.NoError(t, err)

	_, err = h.svc.ImportTexts(ctx, "p1", []project.TextInput{{ID: "t0", Text: "a"}, {ID: "t0", Text: "b"}})
	require.ErrorIs(t, err, project.ErrAlreadyExists)

	_, err = h.svc.ImportTexts(ctx, "p1", []project.TextInput{{ID: "t0", Text: "   "}})
	require.ErrorIs(t, err, project.ErrBadRequest)

	rows, err := project.ParseTextsCSV(strings.NewReader("id,text\nt0,\"one, two\"\nt1,three\n"))
	require.NoError(t, err)
	require.Equal(t, []project.TextInput{{ID: "t0", Text: "one, two"}, {ID: "t1", Text: "three"}}, rows)

	snap, err := h.svc.ImportTexts(ctx, "p1", rows)
	require.NoError(t, err)
	require.Len(t, snap.ActiveTexts(), 2)

	_, err = h.svc.ImportTexts(ctx, "p1", []project.TextInput{{ID: "t1", Text: "dup"}})
	require.ErrorIs(t, err, project.ErrAlreadyExists)
}

func TestAnnotate_RejectsInconsistent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)
	snap := h.sampled(t, [2]string{"t0", "t1"}, [2]string{"t2", "t1"}, [2]string{"t0", "t2"})
	require.Equal(t, project.StateSamplingPending, snap.Status.State)
	require.Equal(t, 3, snap.PendingInIteration(1))

	_, err := h.svc.AnnotateConstraint(ctx, "p1", constraint.ID("t0", "t1"), mustLink())
	require.NoError(t, err)
	before, err := h.svc.AnnotateConstraint(ctx, "p1", constraint.ID("t1", "t2"), mustLink())
	require.NoError(t, err)

	_, err = h.svc.AnnotateConstraint(ctx, "p1", constraint.ID("t0", "t2"), cannotLink())
	require.ErrorIs(t, err, project.ErrInconsistent)

	after, err := h.svc.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, before.Metadata.Version, after.Metadata.Version)
	require.Nil(t, after.Constraints[constraint.ID("t0", "t2")].Type)

	implied, err := h.svc.Implied(ctx, "p1", "t2", "t0")
	require.NoError(t, err)
	require.Equal(t, constraint.ImpliedMustLink, implied)
}

func TestAnnotate_RetypeAgainstGraph(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tick := time.UnixMilli(1_700_000_000_000)
	h.svc.SetClock(func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	})
	h.clustered(t)
	h.sampled(t, [2]string{"t0", "t1"}, [2]string{"t1", "t2"}, [2]string{"t0", "t2"}, [2]string{"t2", "t3"})

	_, err := h.svc.AnnotateConstraint(ctx, "p1", "(t0,t1)", mustLink())
	require.NoError(t, err)
	_, err = h.svc.AnnotateConstraint(ctx, "p1", "(t1,t2)", cannotLink())
	require.NoError(t, err)
	_, err = h.svc.AnnotateConstraint(ctx, "p1", "(t0,t2)", cannotLink())
	require.NoError(t, err)

	_, err = h.svc.AnnotateConstraint(ctx, "p1", "(t0,t2)", mustLink())
	require.ErrorIs(t, err, project.ErrInconsistent)

	snap, err := h.svc.AnnotateConstraint(ctx, "p1", "(t0,t1)", cannotLink())
	require.NoError(t, err)
	require.Equal(t, constraint.CannotLink, *snap.Constraints["(t0,t1)"].Type)
	require.Equal(t, project.StateSamplingPending, snap.Status.State)
}

func TestAnnotate_CompletesBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)
	h.sampled(t, [2]string{"t0", "t1"}, [2]string{"t2", "t3"})

	_, err := h.svc.ApproveConstraints(ctx, "p1")
	require.ErrorIs(t, err, project.ErrBadState)

	_, err = h.svc.AnnotateConstraint(ctx, "p1", "(t0,t1)", mustLink())
	require.NoError(t, err)
	snap, err := h.svc.AnnotateConstraint(ctx, "p1", "(t2,t3)", nil)
	require.NoError(t, err)
	require.Equal(t, project.StateClusteringTodo, snap.Status.State)
	require.True(t, snap.Constraints["(t2,t3)"].IsHidden)

	again, err := h.svc.ApproveConstraints(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, snap.Metadata.Version, again.Metadata.Version)

	_, err = h.svc.AnnotateConstraint(ctx, "p1", "(t1,t0)", mustLink())
	require.ErrorIs(t, err, project.ErrBadRequest)
	_, err = h.svc.AnnotateConstraint(ctx, "p1", "(t0,t2)", mustLink())
	require.ErrorIs(t, err, project.ErrBadState)
}

func TestAnnotate_ManualConstraint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)
	h.sampled(t, [2]string{"t0", "t1"})

	snap, err := h.svc.AnnotateConstraint(ctx, "p1", "(t0,t3)", cannotLink())
	require.NoError(t, err)
	manual := snap.Constraints["(t0,t3)"]
	require.Equal(t, 1, manual.IterationOfSampling)
	require.Equal(t, constraint.CannotLink, *manual.Type)
	require.Equal(t, project.StateSamplingPending, snap.Status.State)
}

func TestDeleteText_HidesConstraints(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)
	h.sampled(t, [2]string{"t0", "t1"}, [2]string{"t1", "t2"}, [2]string{"t2", "t3"})

	_, err := h.svc.AnnotateConstraint(ctx, "p1", "(t0,t1)", mustLink())
	require.NoError(t, err)

	snap, err := h.svc.DeleteText(ctx, "p1", "t1")
	require.NoError(t, err)
	require.Equal(t, project.StateAnnotationWithPendingModelization, snap.Status.State)
	require.True(t, snap.Constraints["(t0,t1)"].IsHidden)
	require.True(t, snap.Constraints["(t1,t2)"].IsHidden)
	require.False(t, snap.Constraints["(t2,t3)"].IsHidden)
	require.Equal(t, 1, snap.PendingInIteration(1))

	implied, err := h.svc.Implied(ctx, "p1", "t0", "t1")
	require.NoError(t, err)
	require.Equal(t, constraint.ImpliedUnknown, implied)

	snap, err = h.svc.UndeleteText(ctx, "p1", "t1")
	require.NoError(t, err)
	require.True(t, snap.Constraints["(t0,t1)"].IsHidden)

	snap, err = h.svc.UnhideConstraint(ctx, "p1", "(t0,t1)")
	require.NoError(t, err)
	require.False(t, snap.Constraints["(t0,t1)"].IsHidden)

	_, err = h.svc.DeleteText(ctx, "p1", "t9")
	require.ErrorIs(t, err, project.ErrTextNotFound)
}

func TestEditSettings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)

	_, err := h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{Clustering: json.RawMessage(`{"nb_clusters":1}`)})
	require.ErrorIs(t, err, project.ErrBadRequest)

	_, err = h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{Clustering: json.RawMessage(`{"nb_cluster":3}`)})
	require.ErrorIs(t, err, project.ErrBadRequest)

	_, err = h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{})
	require.ErrorIs(t, err, project.ErrBadRequest)

	_, err = h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{Sampling: json.RawMessage(`{"nb_to_select":5}`)})
	require.ErrorIs(t, err, project.ErrBadState)

	limit := 3
	snap, err := h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{MaxIterationForAnnotation: &limit})
	require.NoError(t, err)
	require.Equal(t, 3, snap.Settings[0].MaxIterationForAnnotation)
	require.Equal(t, project.StateClusteringPending, snap.Status.State)

	snap = h.sampled(t)
	require.Equal(t, project.StateClusteringTodo, snap.Status.State)
	require.Equal(t, 3, snap.Settings[1].MaxIterationForAnnotation)

	snap, err = h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{Preprocessing: json.RawMessage(`{"apply_stemming":true}`)})
	require.NoError(t, err)
	require.Equal(t, project.StateAnnotationWithPendingModelization, snap.Status.State)
	require.False(t, snap.Settings[0].Preprocessing.ApplyStemming)
}

func TestEditSettings_PartialSectionKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.CreateProject(ctx, project.CreateRequest{ID: "p1", Name: "Test"})
	require.NoError(t, err)

	update, err := project.DecodeSettingsUpdateBytes([]byte(`{"preprocessing":{"apply_stemming":true},"clustering":{"nb_clusters":3}}`))
	require.NoError(t, err)
	snap, err := h.svc.EditSettings(ctx, "p1", update)
	require.NoError(t, err)

	defaults := project.DefaultSettings()
	got := snap.Settings[0]
	require.True(t, got.Preprocessing.ApplyStemming)
	require.True(t, got.Preprocessing.ApplyStopwordsDeletion)
	require.Equal(t, defaults.Preprocessing.SpacyLanguageModel, got.Preprocessing.SpacyLanguageModel)
	require.Equal(t, 3, got.Clustering.NbClusters)
	require.Equal(t, defaults.Clustering.RandomSeed, got.Clustering.RandomSeed)
	require.Equal(t, defaults.Clustering.Init, got.Clustering.Init)
	require.Equal(t, defaults.Sampling, got.Sampling)
}

func TestStartIteration_Cap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)

	limit := 1
	_, err := h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{MaxIterationForAnnotation: &limit})
	require.NoError(t, err)
	h.sampled(t)
	h.cluster(t)

	snap, err := h.svc.StartIteration(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, project.StateIterationEnd, snap.Status.State)
	require.Equal(t, 1, snap.Status.IterationID)

	limit = 2
	snap, err = h.svc.EditSettings(ctx, "p1", project.SettingsUpdate{MaxIterationForAnnotation: &limit})
	require.NoError(t, err)
	require.Equal(t, project.StateClusteringPending, snap.Status.State)
}

func TestCancelTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)
	h.sampled(t)

	_, err := h.svc.CancelTask(ctx, "p1")
	require.ErrorIs(t, err, project.ErrBadState)

	snap, err := h.svc.RunClustering(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, project.StateClusteringWorking, snap.Status.State)
	job := h.lastJob(t)

	snap, err = h.svc.CancelTask(ctx, "p1")
	require.NoError(t, err)
	require.True(t, snap.Status.Task.CancelRequested)
	h.sched.AssertCalled(t, "Cancel", "p1")

	_, err = h.svc.CompleteClustering(ctx, job, "kmeans", map[string]int{"t0": 0})
	require.ErrorIs(t, err, project.ErrTaskCanceled)

	status, err := h.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, project.StateClusteringTodo, status.State)
	require.Nil(t, status.Task)
	require.Equal(t, project.OutcomeCanceled, status.LastTask.Outcome)

	_, err = h.svc.GetClustering(ctx, "p1", nil)
	require.ErrorIs(t, err, project.ErrNotFound)
}

func TestFailTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.CreateProject(ctx, project.CreateRequest{ID: "p1", Name: "Test"})
	require.NoError(t, err)
	_, err = h.svc.RunModelization(ctx, "p1")
	require.ErrorIs(t, err, project.ErrBadState)

	_, err = h.svc.ImportTexts(ctx, "p1", []project.TextInput{{ID: "t0", Text: "alpha"}})
	require.NoError(t, err)
	_, err = h.svc.RunModelization(ctx, "p1")
	require.NoError(t, err)

	require.NoError(t, h.svc.FailTask(ctx, h.lastJob(t), errors.New("vectorizer exploded")))
	status, err := h.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, project.StateInitializationWithErrors, status.State)
	require.Equal(t, "vectorizer exploded", status.LastError)
	require.Equal(t, project.OutcomeFailed, status.LastTask.Outcome)

	// A stale job is ignored once the project has moved on.
	_, err = h.svc.Checkpoint(ctx, h.lastJob(t), 50)
	require.ErrorIs(t, err, project.ErrTaskSuperseded)
}

func TestRecoverInterrupted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)
	_, err := h.svc.StartIteration(ctx, "p1")
	require.NoError(t, err)
	_, err = h.svc.RunSampling(ctx, "p1")
	require.NoError(t, err)

	recovered, err := h.svc.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, recovered)

	status, err := h.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, project.StateSamplingTodo, status.State)
	require.Equal(t, project.ReasonInterrupted, status.LastError)
	require.Equal(t, project.OutcomeInterrupted, status.LastTask.Outcome)

	recovered, err = h.svc.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.Empty(t, recovered)
}

func TestRecoverInterrupted_HidesContradictions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.svc.CreateProject(ctx, project.CreateRequest{ID: "p1", Name: "Test"})
	require.NoError(t, err)
	_, err = h.svc.ImportTexts(ctx, "p1", []project.TextInput{
		{ID: "t0", Text: "alpha"},
		{ID: "t1", Text: "beta"},
		{ID: "t2", Text: "gamma"},
	})
	require.NoError(t, err)

	snap, err := h.store.Load(ctx, "p1")
	require.NoError(t, err)
	for i, seed := range []struct {
		a, b string
		typ  constraint.Type
	}{
		{"t0", "t1", constraint.MustLink},
		{"t1", "t2", constraint.MustLink},
		{"t0", "t2", constraint.CannotLink},
	} {
		c := constraint.New(seed.a, seed.b, 0)
		c.Type = constraint.TypePtr(seed.typ)
		date := int64(1000 + i)
		c.DateOfUpdate = &date
		snap.Constraints[c.ID] = c
	}
	require.NoError(t, h.store.Commit(ctx, snap))
	contradiction := constraint.ID("t0", "t2")

	status, err := h.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, status.Warnings, 1)
	require.Contains(t, status.Warnings[0], contradiction)

	hidden := true
	listed, err := h.svc.GetConstraints(ctx, "p1", project.ConstraintFilter{Hidden: &hidden})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, contradiction, listed[0].ID)

	recovered, err := h.svc.RecoverInterrupted(ctx)
	require.NoError(t, err)
	require.Empty(t, recovered)

	stored, err := h.store.Load(ctx, "p1")
	require.NoError(t, err)
	require.True(t, stored.Constraints[contradiction].IsHidden)
	require.False(t, stored.Constraints[constraint.ID("t0", "t1")].IsHidden)
	require.Len(t, stored.Status.Warnings, 1)
	require.Equal(t, snap.Metadata.Version+1, stored.Metadata.Version)

	status, err = h.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, status.Warnings, 1)
}

func TestDeleteLastIteration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)

	_, err := h.svc.DeleteLastIteration(ctx, "p1")
	require.ErrorIs(t, err, project.ErrBadState)

	h.sampled(t, [2]string{"t0", "t1"}, [2]string{"t2", "t3"})
	snap, err := h.svc.DeleteLastIteration(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 0, snap.Status.IterationID)
	require.Equal(t, project.StateClusteringPending, snap.Status.State)
	require.Empty(t, snap.Constraints)
	require.NotContains(t, snap.Settings, 1)

	one := 1
	_, err = h.svc.GetSampling(ctx, "p1", &one)
	require.ErrorIs(t, err, project.ErrNotFound)
	clustering, err := h.svc.GetClustering(ctx, "p1", nil)
	require.NoError(t, err)
	require.Equal(t, 0, clustering.IterationID)
}

func TestDeleteProject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.clustered(t)

	require.NoError(t, h.svc.DeleteProject(ctx, "p1"))
	require.ErrorIs(t, h.svc.DeleteProject(ctx, "p1"), project.ErrProjectNotFound)

	list, err := h.svc.ListProjects(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}
