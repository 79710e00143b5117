package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpggio/clusterbench/internal/clustering"
	"github.com/rpggio/clusterbench/internal/domain/constraint"
	"github.com/rpggio/clusterbench/internal/domain/project"
)

// preprocessCheckpoints is how many progress updates preprocessing reports.
const preprocessCheckpoints = 5

func settingsOf(snap *project.Snapshot, job project.Job) (project.Settings, error) {
	settings, ok := snap.Settings[job.IterationID]
	if !ok {
		return project.Settings{}, fmt.Errorf("no settings for iteration %d", job.IterationID)
	}
	return settings, nil
}

func (r *Runner) modelize(ctx, hostCtx context.Context, job project.Job) error {
	snap, err := r.host.BeginTask(hostCtx, job)
	if err != nil {
		return err
	}
	settings, err := settingsOf(snap, job)
	if err != nil {
		return err
	}
	popts := clustering.PreprocessingOptions{
		StopwordsDeletion: settings.Preprocessing.ApplyStopwordsDeletion,
		Stemming:          settings.Preprocessing.ApplyStemming,
		Lemmatization:     settings.Preprocessing.ApplyLemmatization,
		LanguageModel:     settings.Preprocessing.SpacyLanguageModel,
	}

	texts := snap.ActiveTexts()
	preprocessed := make(map[string]string, len(texts))
	docs := make([]clustering.Document, 0, len(texts))
	step := max(len(texts)/preprocessCheckpoints, 1)
	for i, t := range texts {
		value, err := r.lib.Preprocess(ctx, t.Original, popts)
		if err != nil {
			return fmt.Errorf("preprocess text %s: %w", t.ID, err)
		}
		preprocessed[t.ID] = value
		docs = append(docs, clustering.Document{ID: t.ID, Text: value})
		if (i+1)%step == 0 {
			if _, err := r.host.Checkpoint(hostCtx, job, 60*(i+1)/len(texts)); err != nil {
				return err
			}
		}
	}

	m, err := r.lib.Vectorize(ctx, docs, clustering.VectorizationOptions{
		Vectorizer:    settings.Vectorization.VectorizerType,
		LanguageModel: settings.Vectorization.SpacyLanguageModel,
	})
	if err != nil {
		return fmt.Errorf("vectorize: %w", err)
	}
	if _, err := r.host.Checkpoint(hostCtx, job, 90); err != nil {
		return err
	}

	vectors := make(map[string]map[string]float64, len(m))
	for id, v := range m {
		vectors[id] = v
	}
	_, err = r.host.CompleteModelization(hostCtx, job, project.ModelizationResult{
		Preprocessed:   preprocessed,
		VectorizerType: settings.Vectorization.VectorizerType,
		Vectors:        vectors,
	})
	return err
}

func (r *Runner) sample(ctx, hostCtx context.Context, job project.Job) error {
	snap, err := r.host.BeginTask(hostCtx, job)
	if err != nil {
		return err
	}
	settings, err := settingsOf(snap, job)
	if err != nil {
		return err
	}
	m, err := r.matrix(hostCtx, job, snap)
	if err != nil {
		return err
	}

	var prior clustering.Labels
	if job.IterationID > 0 {
		previous := job.IterationID - 1
		c, err := r.host.GetClustering(hostCtx, job.ProjectID, &previous)
		switch {
		case err == nil:
			prior = c.Labels
		case !errors.Is(err, project.ErrArtifactNotFound):
			return fmt.Errorf("load previous clustering: %w", err)
		}
	}
	if _, err := r.host.Checkpoint(hostCtx, job, 30); err != nil {
		return err
	}

	g, _ := constraint.Rebuild(snap.ConstraintList())
	known := clustering.RelationsFunc(func(a, b string) bool {
		if _, ok := snap.Constraints[constraint.ID(a, b)]; ok {
			return true
		}
		return g.Implied(a, b) != constraint.ImpliedUnknown
	})
	pairs, err := r.lib.SamplePairs(ctx, m, prior, known, clustering.SamplingOptions{
		Algorithm:  settings.Sampling.Algorithm,
		NbToSelect: settings.Sampling.NbToSelect,
		Seed:       settings.Sampling.RandomSeed,
	})
	if err != nil {
		return fmt.Errorf("sample pairs: %w", err)
	}

	out := make([][2]string, len(pairs))
	for i, p := range pairs {
		out[i] = p
	}
	_, err = r.host.CompleteSampling(hostCtx, job, settings.Sampling.Algorithm, out)
	return err
}

func (r *Runner) cluster(ctx, hostCtx context.Context, job project.Job) error {
	snap, err := r.host.BeginTask(hostCtx, job)
	if err != nil {
		return err
	}
	settings, err := settingsOf(snap, job)
	if err != nil {
		return err
	}
	m, err := r.matrix(hostCtx, job, snap)
	if err != nil {
		return err
	}
	if _, err := r.host.Checkpoint(hostCtx, job, 20); err != nil {
		return err
	}

	var links []clustering.Link
	for _, c := range snap.ConstraintList() {
		if !c.Active() {
			continue
		}
		if _, ok := m[c.TextIDA]; !ok {
			continue
		}
		if _, ok := m[c.TextIDB]; !ok {
			continue
		}
		links = append(links, clustering.Link{A: c.TextIDA, B: c.TextIDB, MustLink: *c.Type == constraint.MustLink})
	}

	labels, err := r.lib.Cluster(ctx, m, links, clustering.ClusteringOptions{
		Algorithm:    settings.Clustering.Algorithm,
		NbClusters:   settings.Clustering.NbClusters,
		Init:         settings.Clustering.Init,
		MaxIteration: settings.Clustering.MaxIteration,
		Seed:         settings.Clustering.RandomSeed,
	})
	if err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	_, err = r.host.CompleteClustering(hostCtx, job, settings.Clustering.Algorithm, labels)
	return err
}

// matrix returns the vectors of the project's active texts from its current modelization.
func (r *Runner) matrix(ctx context.Context, job project.Job, snap *project.Snapshot) (clustering.Matrix, error) {
	model, err := r.host.GetModelization(ctx, job.ProjectID, nil)
	if err != nil {
		return nil, fmt.Errorf("load modelization: %w", err)
	}
	m := make(clustering.Matrix)
	for _, t := range snap.ActiveTexts() {
		if v, ok := model.Vectors[t.ID]; ok {
			m[t.ID] = v
		}
	}
	if len(m) == 0 {
		return nil, clustering.ErrNoTexts
	}
	return m, nil
}
