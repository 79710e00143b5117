package clustering

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
)

type candidate struct {
	pair Pair
	dist float64
}

// SamplePairs selects up to opts.NbToSelect pairs of texts of m whose relation is
// not known yet. Without prior labels every text is considered in one cluster.
func (b *Builtin) SamplePairs(ctx context.Context, m Matrix, prior Labels, known Relations, opts SamplingOptions) ([]Pair, error) {
	if opts.NbToSelect <= 0 {
		return nil, nil
	}
	ids := m.IDs()
	label := func(id string) int {
		if prior == nil {
			return 0
		}
		if l, ok := prior[id]; ok {
			return l
		}
		return -1
	}

	var keep func(a, b string) bool
	switch opts.Algorithm {
	case "random":
		keep = func(a, b string) bool { return true }
	case "closest_in_different_clusters":
		keep = func(a, b string) bool { return label(a) != label(b) }
	case "farthest_in_same_cluster":
		keep = func(a, b string) bool { return label(a) == label(b) }
	default:
		return nil, fmt.Errorf("sampling algorithm %q: %w", opts.Algorithm, ErrUnsupported)
	}

	var candidates []candidate
	for i, a := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, b := range ids[i+1:] {
			if !keep(a, b) || (known != nil && known.Known(a, b)) {
				continue
			}
			candidates = append(candidates, candidate{pair: Pair{a, b}, dist: cosineDistance(m[a], m[b])})
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	switch opts.Algorithm {
	case "random":
		rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
	case "closest_in_different_clusters":
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	case "farthest_in_same_cluster":
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].dist > candidates[j].dist })
	}

	n := min(opts.NbToSelect, len(candidates))
	out := make([]Pair, n)
	for i := range out {
		out[i] = candidates[i].pair
	}
	return out, nil
}
