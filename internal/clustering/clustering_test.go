package clustering_test

import (
	"context"
	"math"
	"testing"

	"github.com/rpggio/clusterbench/internal/clustering"
	"github.com/stretchr/testify/require"
)

func twoTopics() clustering.Matrix {
	return clustering.Matrix{
		"a1": {"x": 1},
		"a2": {"x": 1},
		"c1": {"y": 1},
		"c2": {"y": 1},
	}
}

func TestPreprocess(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()
	text := "Les Élèves étudient, the running cats!"

	out, err := lib.Preprocess(ctx, text, clustering.PreprocessingOptions{})
	require.NoError(t, err)
	require.Equal(t, "les eleves etudient the running cats", out)

	out, err = lib.Preprocess(ctx, text, clustering.PreprocessingOptions{StopwordsDeletion: true, Stemming: true})
	require.NoError(t, err)
	require.Equal(t, "elev etudient runn cat", out)

	_, err = lib.Preprocess(ctx, text, clustering.PreprocessingOptions{Lemmatization: true, LanguageModel: "fr_core_news_md"})
	require.ErrorIs(t, err, clustering.ErrUnsupported)
}

func TestVectorize(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()
	docs := []clustering.Document{
		{ID: "a", Text: "apple banana fruit"},
		{ID: "b", Text: "apple banana juice"},
		{ID: "c", Text: "car engine wheel"},
		{ID: "d", Text: ""},
	}

	m, err := lib.Vectorize(ctx, docs, clustering.VectorizationOptions{Vectorizer: "tfidf"})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, m.IDs())
	require.Empty(t, m["d"])

	for _, id := range []string{"a", "b", "c"} {
		var norm float64
		for _, x := range m[id] {
			norm += x * x
		}
		require.InDelta(t, 1.0, math.Sqrt(norm), 1e-9, id)
	}
	require.Greater(t, m["a"]["fruit"], m["a"]["apple"])
	require.NotContains(t, m["c"], "apple")

	_, err = lib.Vectorize(ctx, docs, clustering.VectorizationOptions{Vectorizer: "spacy", LanguageModel: "fr_core_news_md"})
	require.ErrorIs(t, err, clustering.ErrUnsupported)

	_, err = lib.Vectorize(ctx, nil, clustering.VectorizationOptions{Vectorizer: "tfidf"})
	require.ErrorIs(t, err, clustering.ErrNoTexts)
}

func TestSamplePairs_ExcludesKnownPairs(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()
	known := clustering.RelationsFunc(func(a, b string) bool { return a == "a1" && b == "a2" })
	opts := clustering.SamplingOptions{Algorithm: "random", NbToSelect: 10, Seed: 7}

	pairs, err := lib.SamplePairs(ctx, twoTopics(), nil, known, opts)
	require.NoError(t, err)
	require.Len(t, pairs, 5)
	for _, p := range pairs {
		require.Less(t, p[0], p[1])
		require.NotEqual(t, clustering.Pair{"a1", "a2"}, p)
	}

	again, err := lib.SamplePairs(ctx, twoTopics(), nil, known, opts)
	require.NoError(t, err)
	require.Equal(t, pairs, again)

	opts.NbToSelect = 2
	pairs, err = lib.SamplePairs(ctx, twoTopics(), nil, known, opts)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
}

func TestSamplePairs_UsesPriorLabels(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()
	prior := clustering.Labels{"a1": 0, "a2": 0, "c1": 1, "c2": 1}

	pairs, err := lib.SamplePairs(ctx, twoTopics(), prior, nil, clustering.SamplingOptions{
		Algorithm: "closest_in_different_clusters", NbToSelect: 3,
	})
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		require.NotEqual(t, prior[p[0]], prior[p[1]])
	}

	pairs, err = lib.SamplePairs(ctx, twoTopics(), prior, nil, clustering.SamplingOptions{
		Algorithm: "farthest_in_same_cluster", NbToSelect: 5,
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []clustering.Pair{{"a1", "a2"}, {"c1", "c2"}}, pairs)

	_, err = lib.SamplePairs(ctx, twoTopics(), prior, nil, clustering.SamplingOptions{Algorithm: "nope", NbToSelect: 1})
	require.ErrorIs(t, err, clustering.ErrUnsupported)
}

func TestCluster_KMeans(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()
	opts := clustering.ClusteringOptions{Algorithm: "kmeans", NbClusters: 2, Init: "kmeans++", MaxIteration: 50, Seed: 42}

	labels, err := lib.Cluster(ctx, twoTopics(), nil, opts)
	require.NoError(t, err)
	require.Equal(t, labels["a1"], labels["a2"])
	require.Equal(t, labels["c1"], labels["c2"])
	require.NotEqual(t, labels["a1"], labels["c1"])
	require.Equal(t, 0, labels["a1"])

	again, err := lib.Cluster(ctx, twoTopics(), nil, opts)
	require.NoError(t, err)
	require.Equal(t, labels, again)
}

func TestCluster_KMeansHonoursConstraints(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()
	opts := clustering.ClusteringOptions{Algorithm: "kmeans", NbClusters: 2, Init: "kmeans++", MaxIteration: 50, Seed: 3}

	labels, err := lib.Cluster(ctx, twoTopics(), []clustering.Link{{A: "a1", B: "c1", MustLink: true}}, opts)
	require.NoError(t, err)
	require.Equal(t, labels["a1"], labels["c1"])

	m := clustering.Matrix{"a1": {"x": 1}, "a2": {"x": 1}, "c1": {"y": 1}}
	labels, err = lib.Cluster(ctx, m, []clustering.Link{{A: "a1", B: "a2"}}, opts)
	require.NoError(t, err)
	require.NotEqual(t, labels["a1"], labels["a2"])
}

func TestCluster_CapsClustersAtGroups(t *testing.T) {
	lib := clustering.NewBuiltin()
	m := clustering.Matrix{"a": {"x": 1}, "b": {"y": 1}, "c": {"z": 1}}

	labels, err := lib.Cluster(context.Background(), m, nil, clustering.ClusteringOptions{
		Algorithm: "kmeans", NbClusters: 10, Init: "random", MaxIteration: 10, Seed: 1,
	})
	require.NoError(t, err)
	require.Len(t, labels, 3)
	seen := map[int]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	require.Len(t, seen, 3)
}

func TestCluster_Hierarchical(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()
	opts := clustering.ClusteringOptions{Algorithm: "hierarchical", NbClusters: 2}

	labels, err := lib.Cluster(ctx, twoTopics(), nil, opts)
	require.NoError(t, err)
	require.Equal(t, clustering.Labels{"a1": 0, "a2": 0, "c1": 1, "c2": 1}, labels)

	labels, err = lib.Cluster(ctx, twoTopics(), []clustering.Link{{A: "a1", B: "a2"}}, opts)
	require.NoError(t, err)
	require.NotEqual(t, labels["a1"], labels["a2"])
	require.Equal(t, labels["c1"], labels["c2"])
}

func TestCluster_Unsupported(t *testing.T) {
	lib := clustering.NewBuiltin()
	ctx := context.Background()

	_, err := lib.Cluster(ctx, twoTopics(), nil, clustering.ClusteringOptions{Algorithm: "spectral", NbClusters: 2})
	require.ErrorIs(t, err, clustering.ErrUnsupported)

	_, err = lib.Cluster(ctx, clustering.Matrix{}, nil, clustering.ClusteringOptions{Algorithm: "kmeans", NbClusters: 2})
	require.ErrorIs(t, err, clustering.ErrNoTexts)
}

func TestCluster_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := clustering.NewBuiltin().Cluster(ctx, twoTopics(), nil, clustering.ClusteringOptions{
		Algorithm: "kmeans", NbClusters: 2, MaxIteration: 5,
	})
	require.ErrorIs(t, err, context.Canceled)
}
