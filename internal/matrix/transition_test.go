package matrix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/conceptrank/internal/cache"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/graph"
)

func TestTransition_RowStochasticWithMultiEdges(t *testing.T) {
	// Given: 1→2 twice and 1→3 once, symmetrized
	adj := graph.Build([]graph.Edge{{Source: 1, Target: 2}, {Source: 1, Target: 2}, {Source: 1, Target: 3}}, true)

	// When: building P
	p, err := Transition(adj)
	require.NoError(t, err)

	// Then: every row sums to 1 and multiplicity becomes weight
	for i, s := range p.RowSums() {
		assert.InDelta(t, 1.0, s, 1e-12, "row %d", i)
	}
	assert.InDelta(t, 2.0/3.0, p.At(0, 1), 1e-12)
	assert.InDelta(t, 1.0/3.0, p.At(0, 2), 1e-12)
	assert.Equal(t, 1.0, p.At(2, 0))
	for _, v := range p.m.RawMatrix().Data {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestTransition_Deterministic(t *testing.T) {
	edges := []graph.Edge{{Source: 1, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 1}, {Source: 1, Target: 3}}
	a, err := Transition(graph.Build(edges, true))
	require.NoError(t, err)
	b, err := Transition(graph.Build(edges, true))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestTransition_DegenerateRow(t *testing.T) {
	// An adjacency with an empty row can only come from a damaged cache.
	adj := &graph.Adjacency{
		Offsets:     []int64{0, 1, 1},
		Neighbors:   []int32{1},
		ExternalIDs: []int64{1, 2},
	}
	_, err := Transition(adj)
	require.Error(t, err)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeDegenerateRow))
	assert.True(t, crerrors.IsFatal(err))
}

func TestBuildOrLoad_CachesAndChecksDimension(t *testing.T) {
	dir := t.TempDir()
	opts := Options{CachePath: filepath.Join(dir, cache.KindMatrix.FileName()), Compression: cache.CompressionZstd}
	adj := graph.Build([]graph.Edge{{Source: 1, Target: 2}, {Source: 2, Target: 3}}, true)

	// Given: a first build
	p, built, err := BuildOrLoad(adj, opts)
	require.NoError(t, err)
	assert.True(t, built)

	// When: loading again
	again, built, err := BuildOrLoad(adj, opts)
	require.NoError(t, err)
	assert.False(t, built)
	assert.True(t, p.Equal(again))

	// Then: a different graph size forces a rebuild
	bigger := graph.Build([]graph.Edge{{Source: 1, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 4}}, true)
	p4, built, err := BuildOrLoad(bigger, opts)
	require.NoError(t, err)
	assert.True(t, built)
	rows, _ := p4.Dims()
	assert.Equal(t, 4, rows)

	// And: a corrupt cache is rebuilt since P derives from the adjacency
	require.NoError(t, os.WriteFile(opts.CachePath, []byte("corrupted matrix bytes, long enough"), 0o644))
	_, built, err = BuildOrLoad(bigger, opts)
	require.NoError(t, err)
	assert.True(t, built)
}
