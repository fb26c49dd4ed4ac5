// Package graph builds the index-keyed adjacency of the concept graph.
//
// Concepts receive dense indices in first-seen order over the edge source
// (for an edge a→b, a is seen before b). Concepts left without outgoing
// edges are pruned before indices are assigned, so every row of the
// resulting adjacency is non-empty.
package graph

import (
	"fmt"
)

// Edge is a raw edge between external concept ids.
type Edge struct {
	Source int64
	Target int64
}

// Adjacency is a CSR neighbor list keyed by dense concept index.
// Neighbors of i are Neighbors[Offsets[i]:Offsets[i+1]]; duplicates are
// kept and accumulate weight in the transition matrix.
type Adjacency struct {
	Offsets   []int64
	Neighbors []int32
	// ExternalIDs maps index to external id.
	ExternalIDs []int64
	Symmetric   bool
}

// Len returns the number of concepts N.
func (a *Adjacency) Len() int {
	return len(a.ExternalIDs)
}

// EdgeCount returns the number of stored neighbor entries.
func (a *Adjacency) EdgeCount() int {
	return len(a.Neighbors)
}

// NeighborsOf returns the neighbor indices of i.
func (a *Adjacency) NeighborsOf(i int) []int32 {
	return a.Neighbors[a.Offsets[i]:a.Offsets[i+1]]
}

// Degree returns the out-degree of i, counting duplicates.
func (a *Adjacency) Degree(i int) int {
	return int(a.Offsets[i+1] - a.Offsets[i])
}

// Validate checks structural invariants of a loaded adjacency.
func (a *Adjacency) Validate() error {
	n := a.Len()
	if len(a.Offsets) != n+1 {
		return fmt.Errorf("offsets length %d, want %d", len(a.Offsets), n+1)
	}
	if a.Offsets[0] != 0 || a.Offsets[n] != int64(len(a.Neighbors)) {
		return fmt.Errorf("offsets do not span neighbors")
	}
	seen := make(map[int64]struct{}, n)
	for i := 0; i < n; i++ {
		if a.Offsets[i+1] <= a.Offsets[i] {
			return fmt.Errorf("row %d is empty or offsets decrease", i)
		}
		if _, dup := seen[a.ExternalIDs[i]]; dup {
			return fmt.Errorf("external id %d appears twice", a.ExternalIDs[i])
		}
		seen[a.ExternalIDs[i]] = struct{}{}
	}
	for _, v := range a.Neighbors {
		if v < 0 || int(v) >= n {
			return fmt.Errorf("neighbor %d out of range", v)
		}
	}
	return nil
}

// Build assembles the adjacency from raw edges.
//
// With symmetrize, every edge is also inserted reversed and no concept can
// end up without neighbors. Without it, concepts with no outgoing edges are
// removed together with the edges pointing at them, repeatedly, until every
// remaining concept has at least one outgoing edge.
func Build(edges []Edge, symmetrize bool) *Adjacency {
	// Provisional indices in first-seen order.
	pos := make(map[int64]int32, len(edges))
	var order []int64
	see := func(id int64) int32 {
		if p, ok := pos[id]; ok {
			return p
		}
		p := int32(len(order))
		pos[id] = p
		order = append(order, id)
		return p
	}

	src := make([]int32, 0, len(edges)*2)
	dst := make([]int32, 0, len(edges)*2)
	for _, e := range edges {
		s := see(e.Source)
		t := see(e.Target)
		src = append(src, s)
		dst = append(dst, t)
		if symmetrize {
			src = append(src, t)
			dst = append(dst, s)
		}
	}

	n := len(order)
	offsets, neighbors := toCSR(n, src, dst)
	alive := pruneSinks(n, offsets, src, dst)

	// Final indices over surviving concepts, first-seen order preserved.
	final := make([]int32, n)
	var ids []int64
	for p := 0; p < n; p++ {
		if !alive[p] {
			final[p] = -1
			continue
		}
		final[p] = int32(len(ids))
		ids = append(ids, order[p])
	}

	adj := &Adjacency{
		Offsets:     make([]int64, 1, len(ids)+1),
		Neighbors:   make([]int32, 0, len(neighbors)),
		ExternalIDs: ids,
		Symmetric:   symmetrize,
	}
	for p := 0; p < n; p++ {
		if !alive[p] {
			continue
		}
		for _, q := range neighbors[offsets[p]:offsets[p+1]] {
			if alive[q] {
				adj.Neighbors = append(adj.Neighbors, final[q])
			}
		}
		adj.Offsets = append(adj.Offsets, int64(len(adj.Neighbors)))
	}
	return adj
}

// toCSR groups edges by source, keeping edge order within each row.
func toCSR(n int, src, dst []int32) ([]int64, []int32) {
	offsets := make([]int64, n+1)
	for _, s := range src {
		offsets[s+1]++
	}
	for i := 0; i < n; i++ {
		offsets[i+1] += offsets[i]
	}
	next := make([]int64, n)
	copy(next, offsets[:n])
	neighbors := make([]int32, len(src))
	for k, s := range src {
		neighbors[next[s]] = dst[k]
		next[s]++
	}
	return offsets, neighbors
}

// pruneSinks marks concepts that keep at least one outgoing edge after
// sinks are removed to a fixpoint.
func pruneSinks(n int, offsets []int64, src, dst []int32) []bool {
	alive := make([]bool, n)
	deg := make([]int64, n)
	var queue []int32
	for p := 0; p < n; p++ {
		deg[p] = offsets[p+1] - offsets[p]
		alive[p] = deg[p] > 0
		if !alive[p] {
			queue = append(queue, int32(p))
		}
	}
	if len(queue) == 0 {
		return alive
	}

	// Predecessor lists, one entry per edge occurrence.
	revOffsets, preds := toCSR(n, dst, src)
	for len(queue) > 0 {
		r := queue[0]
		queue = queue[1:]
		for _, u := range preds[revOffsets[r]:revOffsets[r+1]] {
			if !alive[u] {
				continue
			}
			deg[u]--
			if deg[u] == 0 {
				alive[u] = false
				queue = append(queue, u)
			}
		}
	}
	return alive
}
