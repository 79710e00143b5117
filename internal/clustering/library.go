// Package clustering provides the text processing and constrained clustering
// algorithms run by background tasks.
package clustering

import (
	"context"
	"errors"
	"sort"
)

var (
	// ErrUnsupported is returned for options the built-in library does not implement.
	ErrUnsupported = errors.New("unsupported option")
	// ErrNoTexts is returned when there is nothing to vectorize or cluster.
	ErrNoTexts = errors.New("no texts")
)

// Vector is a sparse vector keyed by feature.
type Vector map[string]float64

// Matrix maps text ids to their vectors.
type Matrix map[string]Vector

// IDs returns the text ids of the matrix, sorted.
func (m Matrix) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Labels maps text ids to cluster labels.
type Labels map[string]int

// Document is a preprocessed text to vectorize.
type Document struct {
	ID   string
	Text string
}

// Pair is an unordered pair of text ids.
type Pair [2]string

// Link is an annotated constraint handed to clustering.
type Link struct {
	A, B     string
	MustLink bool
}

// Relations reports whether the relation between two texts is already known,
// either annotated, pending or implied.
type Relations interface {
	Known(a, b string) bool
}

// RelationsFunc adapts a function to Relations.
type RelationsFunc func(a, b string) bool

func (f RelationsFunc) Known(a, b string) bool { return f(a, b) }

type PreprocessingOptions struct {
	StopwordsDeletion bool
	Stemming          bool
	Lemmatization     bool
	LanguageModel     string
}

type VectorizationOptions struct {
	Vectorizer    string
	LanguageModel string
}

type SamplingOptions struct {
	Algorithm  string
	NbToSelect int
	Seed       int64
}

type ClusteringOptions struct {
	Algorithm    string
	NbClusters   int
	Init         string
	MaxIteration int
	Seed         int64
}

// Library is the algorithm port used by the task runner.
type Library interface {
	Preprocess(ctx context.Context, text string, opts PreprocessingOptions) (string, error)
	Vectorize(ctx context.Context, docs []Document, opts VectorizationOptions) (Matrix, error)
	SamplePairs(ctx context.Context, m Matrix, prior Labels, known Relations, opts SamplingOptions) ([]Pair, error)
	Cluster(ctx context.Context, m Matrix, links []Link, opts ClusteringOptions) (Labels, error)
}

// Builtin is the pure Go implementation of Library.
type Builtin struct{}

// NewBuiltin returns the built-in library.
func NewBuiltin() *Builtin {
	return &Builtin{}
}

var _ Library = (*Builtin)(nil)
