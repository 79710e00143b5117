package clustering

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Cluster partitions the texts of m into at most opts.NbClusters clusters.
// Must-link groups always share a cluster; cannot-links are honoured whenever a
// compatible cluster exists.
func (b *Builtin) Cluster(ctx context.Context, m Matrix, links []Link, opts ClusteringOptions) (Labels, error) {
	if len(m) == 0 {
		return nil, ErrNoTexts
	}
	if opts.NbClusters < 1 {
		return nil, fmt.Errorf("nb_clusters %d: %w", opts.NbClusters, ErrUnsupported)
	}
	g := buildGroups(m, links)

	var assign []int
	var err error
	switch opts.Algorithm {
	case "kmeans":
		assign, err = kmeans(ctx, g, opts)
	case "hierarchical":
		assign, err = averageLinkage(ctx, g, opts.NbClusters)
	default:
		return nil, fmt.Errorf("clustering algorithm %q: %w", opts.Algorithm, ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	return g.labels(assign), nil
}

// groups are the must-link closures of the texts, the units clustering moves.
type groups struct {
	members [][]string
	centers []Vector
	cannot  []map[int]bool
}

func buildGroups(m Matrix, links []Link) *groups {
	ids := m.IDs()
	index := make(map[string]int, len(ids))
	parent := make([]int, len(ids))
	for i, id := range ids {
		index[id] = i
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for _, l := range links {
		a, okA := index[l.A]
		b, okB := index[l.B]
		if !l.MustLink || !okA || !okB {
			continue
		}
		ra, rb := find(a), find(b)
		if ra != rb {
			// keep the smallest index as root so group order follows id order
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	g := &groups{}
	groupOf := make(map[int]int)
	textGroup := make(map[string]int, len(ids))
	for i, id := range ids {
		root := find(i)
		gi, ok := groupOf[root]
		if !ok {
			gi = len(g.members)
			groupOf[root] = gi
			g.members = append(g.members, nil)
		}
		g.members[gi] = append(g.members[gi], id)
		textGroup[id] = gi
	}

	g.centers = make([]Vector, len(g.members))
	g.cannot = make([]map[int]bool, len(g.members))
	for gi, members := range g.members {
		g.centers[gi] = mean(m, members)
		g.cannot[gi] = make(map[int]bool)
	}
	for _, l := range links {
		a, okA := textGroup[l.A]
		b, okB := textGroup[l.B]
		if l.MustLink || !okA || !okB || a == b {
			continue
		}
		g.cannot[a][b] = true
		g.cannot[b][a] = true
	}
	return g
}

func mean(m Matrix, ids []string) Vector {
	out := make(Vector)
	for _, id := range ids {
		for k, x := range m[id] {
			out[k] += x
		}
	}
	n := float64(len(ids))
	for k := range out {
		out[k] /= n
	}
	return out
}

// labels renumbers clusters by first appearance in text id order.
func (g *groups) labels(assign []int) Labels {
	textLabel := make(map[string]int)
	for gi, members := range g.members {
		for _, id := range members {
			textLabel[id] = assign[gi]
		}
	}
	ids := make([]string, 0, len(textLabel))
	for gi := range g.members {
		ids = append(ids, g.members[gi]...)
	}
	sort.Strings(ids)

	renumber := make(map[int]int)
	out := make(Labels, len(ids))
	for _, id := range ids {
		l := textLabel[id]
		n, ok := renumber[l]
		if !ok {
			n = len(renumber)
			renumber[l] = n
		}
		out[id] = n
	}
	return out
}

func kmeans(ctx context.Context, g *groups, opts ClusteringOptions) ([]int, error) {
	n := len(g.members)
	k := min(opts.NbClusters, n)
	rng := rand.New(rand.NewSource(opts.Seed))

	var centroids []Vector
	switch opts.Init {
	case "random":
		for _, gi := range rng.Perm(n)[:k] {
			centroids = append(centroids, copyVector(g.centers[gi]))
		}
	case "", "kmeans++":
		centroids = kmeansPlusPlus(g, k, rng)
	default:
		return nil, fmt.Errorf("init %q: %w", opts.Init, ErrUnsupported)
	}

	maxIter := max(opts.MaxIteration, 1)
	assign := make([]int, n)
	for i := range assign {
		assign[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := assignGroups(g, centroids)
		changed := false
		for i := range next {
			if next[i] != assign[i] {
				changed = true
				break
			}
		}
		assign = next
		if !changed {
			break
		}
		centroids = recompute(g, assign, centroids)
	}
	return assign, nil
}

func kmeansPlusPlus(g *groups, k int, rng *rand.Rand) []Vector {
	n := len(g.members)
	first := rng.Intn(n)
	centroids := []Vector{copyVector(g.centers[first])}
	nearest := make([]float64, n)
	for i := range nearest {
		nearest[i] = sqDist(g.centers[i], centroids[0])
	}
	for len(centroids) < k {
		var total float64
		for _, d := range nearest {
			total += d
		}
		pick := 0
		if total == 0 {
			pick = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			for i, d := range nearest {
				if d > 0 {
					pick = i
				}
				if target < d {
					break
				}
				target -= d
			}
		}
		c := copyVector(g.centers[pick])
		centroids = append(centroids, c)
		for i := range nearest {
			nearest[i] = math.Min(nearest[i], sqDist(g.centers[i], c))
		}
	}
	return centroids
}

// assignGroups places each group, in order, in the nearest centroid that holds
// no group it cannot link with, falling back to the nearest centroid overall.
func assignGroups(g *groups, centroids []Vector) []int {
	assign := make([]int, len(g.members))
	for i := range assign {
		assign[i] = -1
	}
	for gi := range g.members {
		best, bestFeasible := -1, -1
		bestDist, bestFeasibleDist := math.Inf(1), math.Inf(1)
		for ci, c := range centroids {
			d := sqDist(g.centers[gi], c)
			if d < bestDist {
				best, bestDist = ci, d
			}
			if d < bestFeasibleDist && feasible(g, assign, gi, ci) {
				bestFeasible, bestFeasibleDist = ci, d
			}
		}
		if bestFeasible >= 0 {
			assign[gi] = bestFeasible
		} else {
			assign[gi] = best
		}
	}
	return assign
}

func feasible(g *groups, assign []int, gi, cluster int) bool {
	for other := range g.cannot[gi] {
		if assign[other] == cluster {
			return false
		}
	}
	return true
}

// recompute returns size-weighted means; empty clusters keep their centroid.
func recompute(g *groups, assign []int, previous []Vector) []Vector {
	sums := make([]Vector, len(previous))
	weights := make([]float64, len(previous))
	for gi, ci := range assign {
		if sums[ci] == nil {
			sums[ci] = make(Vector)
		}
		w := float64(len(g.members[gi]))
		for k, x := range g.centers[gi] {
			sums[ci][k] += x * w
		}
		weights[ci] += w
	}
	out := make([]Vector, len(previous))
	for ci := range out {
		if weights[ci] == 0 {
			out[ci] = previous[ci]
			continue
		}
		for k := range sums[ci] {
			sums[ci][k] /= weights[ci]
		}
		out[ci] = sums[ci]
	}
	return out
}

// averageLinkage merges the closest pair of compatible clusters until k remain
// or no compatible pair is left.
func averageLinkage(ctx context.Context, g *groups, k int) ([]int, error) {
	n := len(g.members)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < n; j++ {
			d := cosineDistance(normalized(g.centers[i]), normalized(g.centers[j]))
			dist[i][j], dist[j][i] = d, d
		}
	}

	size := make([]float64, n)
	alive := make([]bool, n)
	cannot := make([]map[int]bool, n)
	owner := make([]int, n)
	for i := range g.members {
		size[i] = float64(len(g.members[i]))
		alive[i] = true
		owner[i] = i
		cannot[i] = make(map[int]bool, len(g.cannot[i]))
		for j := range g.cannot[i] {
			cannot[i][j] = true
		}
	}

	clusters := n
	for clusters > k {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !alive[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !alive[j] || cannot[i][j] {
					continue
				}
				if dist[i][j] < best {
					best, bi, bj = dist[i][j], i, j
				}
			}
		}
		if bi < 0 {
			break
		}
		// merge bj into bi with the Lance-Williams update for average linkage
		for x := 0; x < n; x++ {
			if !alive[x] || x == bi || x == bj {
				continue
			}
			d := (size[bi]*dist[bi][x] + size[bj]*dist[bj][x]) / (size[bi] + size[bj])
			dist[bi][x], dist[x][bi] = d, d
		}
		for other := range cannot[bj] {
			if other == bi {
				continue
			}
			cannot[bi][other] = true
			cannot[other][bi] = true
			delete(cannot[other], bj)
		}
		size[bi] += size[bj]
		alive[bj] = false
		for gi := range owner {
			if owner[gi] == bj {
				owner[gi] = bi
			}
		}
		clusters--
	}
	return owner, nil
}

func normalized(v Vector) Vector {
	out := copyVector(v)
	normalize(out)
	return out
}

func copyVector(v Vector) Vector {
	out := make(Vector, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}
