package common

// DisjointSet is a union-find forest over the integers [0, n).
type DisjointSet struct {
	parent []int
	rank   []int
}

// NewDisjointSet creates n singleton sets.
func NewDisjointSet(n int) *DisjointSet {
	ds := &DisjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

// Find returns the representative of i's set, compressing the path.
func (ds *DisjointSet) Find(i int) int {
	for ds.parent[i] != i {
		ds.parent[i] = ds.parent[ds.parent[i]]
		i = ds.parent[i]
	}
	return i
}

// Union joins the sets containing a and b.
func (ds *DisjointSet) Union(a, b int) {
	ra, rb := ds.Find(a), ds.Find(b)
	if ra == rb {
		return
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
	}
}

// Components groups the indices of boxes into the connected components of the
// "Near within margin" graph.
//
// Every pair is tested, so the grouping is the transitive closure of the
// relation and does not depend on input order. Components are returned ordered
// by their smallest member index, members ascending.
//
// Arguments:
//   - boxes: The regions forming the graph vertices.
//   - margin: Proximity margin passed to Near.
//
// Returns:
//   - [][]int: Indices into boxes, one slice per component.
func Components(boxes []Region, margin int) [][]int {
	ds := NewDisjointSet(len(boxes))
	for i := 0; i < len(boxes); i++ {
		for j := i + 1; j < len(boxes); j++ {
			if Near(boxes[i], boxes[j], margin) {
				ds.Union(i, j)
			}
		}
	}

	index := make(map[int]int)
	var groups [][]int
	for i := range boxes {
		root := ds.Find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
