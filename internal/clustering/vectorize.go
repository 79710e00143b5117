package clustering

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Vectorize builds L2-normalised TF-IDF vectors with smoothed idf.
func (b *Builtin) Vectorize(ctx context.Context, docs []Document, opts VectorizationOptions) (Matrix, error) {
	switch opts.Vectorizer {
	case "", "tfidf":
	case "spacy":
		return nil, fmt.Errorf("spacy vectors with %q: %w", opts.LanguageModel, ErrUnsupported)
	default:
		return nil, fmt.Errorf("vectorizer %q: %w", opts.Vectorizer, ErrUnsupported)
	}
	if len(docs) == 0 {
		return nil, ErrNoTexts
	}

	counts := make([]map[string]float64, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		tf := make(map[string]float64)
		for _, tok := range strings.Fields(doc.Text) {
			tf[tok]++
		}
		for tok := range tf {
			df[tok]++
		}
		counts[i] = tf
	}

	n := float64(len(docs))
	m := make(Matrix, len(docs))
	for i, doc := range docs {
		v := make(Vector, len(counts[i]))
		for tok, c := range counts[i] {
			idf := math.Log((1+n)/(1+float64(df[tok]))) + 1
			v[tok] = c * idf
		}
		normalize(v)
		m[doc.ID] = v
	}
	return m, nil
}

func normalize(v Vector) {
	norm := math.Sqrt(dot(v, v))
	if norm == 0 {
		return
	}
	for k, x := range v {
		v[k] = x / norm
	}
}

func dot(a, b Vector) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var sum float64
	for k, x := range a {
		sum += x * b[k]
	}
	return sum
}

// sqDist is the squared euclidean distance between two sparse vectors.
func sqDist(a, b Vector) float64 {
	var sum float64
	for k, x := range a {
		d := x - b[k]
		sum += d * d
	}
	for k, y := range b {
		if _, ok := a[k]; !ok {
			sum += y * y
		}
	}
	return sum
}

// cosineDistance assumes normalised vectors. Empty vectors are at distance 1 from everything.
func cosineDistance(a, b Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	return 1 - dot(a, b)
}
