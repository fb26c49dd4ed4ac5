// Package registry maps external concept ids to dense indices and labels.
//
// Indices [0, N) are the graph concepts, in the adjacency's order. Ids that
// appear only in the label source get indices from N upward; they carry a
// label but never take part in ranking.
package registry

import (
	"fmt"
)

// Registry is the bidirectional id map plus index→label lookup.
// It is immutable after construction and safe for concurrent reads.
type Registry struct {
	toIndex    map[int64]int
	toExternal []int64
	labels     map[int]string
	graphSize  int
}

// LabelRecord is one parsed label line.
type LabelRecord struct {
	ExternalID int64
	Label      string
}

// New creates a registry whose first N indices are graphIDs.
func New(graphIDs []int64) *Registry {
	r := &Registry{
		toIndex:    make(map[int64]int, len(graphIDs)),
		toExternal: append([]int64(nil), graphIDs...),
		labels:     make(map[int]string),
		graphSize:  len(graphIDs),
	}
	for i, id := range graphIDs {
		r.toIndex[id] = i
	}
	return r
}

// AddLabels assigns the next index to unseen ids and records labels.
// For an id listed more than once, the last label wins.
func (r *Registry) AddLabels(records []LabelRecord) {
	for _, rec := range records {
		idx, ok := r.toIndex[rec.ExternalID]
		if !ok {
			idx = len(r.toExternal)
			r.toIndex[rec.ExternalID] = idx
			r.toExternal = append(r.toExternal, rec.ExternalID)
		}
		r.labels[idx] = rec.Label
	}
}

// Encode returns the index of an external id.
func (r *Registry) Encode(externalID int64) (int, bool) {
	idx, ok := r.toIndex[externalID]
	return idx, ok
}

// Decode returns the external id of an index.
func (r *Registry) Decode(index int) (int64, bool) {
	if index < 0 || index >= len(r.toExternal) {
		return 0, false
	}
	return r.toExternal[index], true
}

// Label returns the label of an index, if the label source had one.
func (r *Registry) Label(index int) (string, bool) {
	l, ok := r.labels[index]
	return l, ok
}

// InGraph reports whether index is a graph concept.
func (r *Registry) InGraph(index int) bool {
	return index >= 0 && index < r.graphSize
}

// Len returns the number of known ids, label-only ones included.
func (r *Registry) Len() int {
	return len(r.toExternal)
}

// GraphSize returns N.
func (r *Registry) GraphSize() int {
	return r.graphSize
}

// LabelCount returns the number of indices with a label.
func (r *Registry) LabelCount() int {
	return len(r.labels)
}

// GraphLabels calls fn for every labeled graph concept.
func (r *Registry) GraphLabels(fn func(index int, externalID int64, label string)) {
	for i := 0; i < r.graphSize; i++ {
		if l, ok := r.labels[i]; ok {
			fn(i, r.toExternal[i], l)
		}
	}
}

// matches reports whether the first N ids equal graphIDs.
func (r *Registry) matches(graphIDs []int64) error {
	if r.graphSize != len(graphIDs) {
		return fmt.Errorf("registry graph size %d, adjacency has %d concepts", r.graphSize, len(graphIDs))
	}
	for i, id := range graphIDs {
		if r.toExternal[i] != id {
			return fmt.Errorf("index %d maps to %d, adjacency has %d", i, r.toExternal[i], id)
		}
	}
	return nil
}
