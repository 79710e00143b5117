package constraint

import (
	"fmt"
	"sort"
)

// Graph holds the transitive closure of the active constraints of a project.
// MUST_LINK edges are kept in a disjoint-set forest; CANNOT_LINK edges are kept
// between class representatives. A Graph is not safe for concurrent use.
type Graph struct {
	parent map[string]string
	rank   map[string]int
	cannot map[string]map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		parent: make(map[string]string),
		rank:   make(map[string]int),
		cannot: make(map[string]map[string]struct{}),
	}
}

// Find returns the representative of the class containing x.
func (g *Graph) Find(x string) string {
	p, ok := g.parent[x]
	if !ok || p == x {
		return x
	}
	root := g.Find(p)
	g.parent[x] = root
	return root
}

func (g *Graph) ensure(x string) {
	if _, ok := g.parent[x]; !ok {
		g.parent[x] = x
	}
}

// Implied returns the relation between a and b derived from the graph.
func (g *Graph) Implied(a, b string) Implication {
	ra, rb := g.Find(a), g.Find(b)
	if ra == rb {
		return ImpliedMustLink
	}
	if _, ok := g.cannot[ra][rb]; ok {
		return ImpliedCannotLink
	}
	return ImpliedUnknown
}

// Check reports whether adding (a, b, t) would be consistent, without mutating the graph.
func (g *Graph) Check(a, b string, t Type) error {
	if err := t.Validate(); err != nil {
		return err
	}
	implied := g.Implied(a, b)
	switch {
	case t == MustLink && implied == ImpliedCannotLink:
		return fmt.Errorf("%w: %s and %s are already cannot-linked", ErrInconsistent, a, b)
	case t == CannotLink && implied == ImpliedMustLink:
		return fmt.Errorf("%w: %s and %s are already must-linked", ErrInconsistent, a, b)
	}
	return nil
}

// Add inserts an annotated edge. Redundant edges are accepted without change.
func (g *Graph) Add(a, b string, t Type) error {
	if err := g.Check(a, b, t); err != nil {
		return err
	}
	g.ensure(a)
	g.ensure(b)
	ra, rb := g.Find(a), g.Find(b)
	if t == MustLink {
		if ra != rb {
			g.union(ra, rb)
		}
		return nil
	}
	if _, ok := g.cannot[ra][rb]; ok {
		return nil
	}
	g.link(ra, rb)
	return nil
}

func (g *Graph) link(ra, rb string) {
	if g.cannot[ra] == nil {
		g.cannot[ra] = make(map[string]struct{})
	}
	if g.cannot[rb] == nil {
		g.cannot[rb] = make(map[string]struct{})
	}
	g.cannot[ra][rb] = struct{}{}
	g.cannot[rb][ra] = struct{}{}
}

func (g *Graph) union(ra, rb string) {
	if g.rank[ra] < g.rank[rb] {
		ra, rb = rb, ra
	}
	g.parent[rb] = ra
	if g.rank[ra] == g.rank[rb] {
		g.rank[ra]++
	}
	// Move the absorbed representative's cannot-links onto the new root.
	for other := range g.cannot[rb] {
		delete(g.cannot[other], rb)
		g.link(ra, other)
	}
	delete(g.cannot, rb)
	delete(g.rank, rb)
}

// Classes returns the must-link classes with at least two members, each sorted.
func (g *Graph) Classes() [][]string {
	groups := make(map[string][]string)
	for x := range g.parent {
		r := g.Find(x)
		groups[r] = append(groups[r], x)
	}
	var out [][]string
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// Rebuild replays the active constraints in date_of_update order and returns the
// graph together with the ids of constraints that contradict earlier ones.
func Rebuild(constraints []Constraint) (*Graph, []string) {
	active := make([]Constraint, 0, len(constraints))
	for _, c := range constraints {
		if c.Active() {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		di, dj := dateOf(active[i]), dateOf(active[j])
		if di != dj {
			return di < dj
		}
		return active[i].ID < active[j].ID
	})

	g := NewGraph()
	var conflicts []string
	for _, c := range active {
		if err := g.Add(c.TextIDA, c.TextIDB, *c.Type); err != nil {
			conflicts = append(conflicts, c.ID)
		}
	}
	return g, conflicts
}

func dateOf(c Constraint) int64 {
	if c.DateOfUpdate == nil {
		return 0
	}
	return *c.DateOfUpdate
}
