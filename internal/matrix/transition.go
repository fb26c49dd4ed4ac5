package matrix

import (
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/conceptrank/internal/cache"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/graph"
)

// Schema is the transition matrix artifact schema version.
const Schema = 1

// Counts returns Q, where Q[i][j] is the number of edges i→j.
func Counts(adj *graph.Adjacency) (*CSR, error) {
	n := adj.Len()
	ts := make([]Triplet, 0, adj.EdgeCount())
	for i := 0; i < n; i++ {
		for _, j := range adj.NeighborsOf(i) {
			ts = append(ts, Triplet{Row: int32(i), Col: j, Value: 1})
		}
	}
	return FromTriplets(n, n, ts)
}

// Transition builds the row-stochastic P = D·Q with D = diag(1/(Q·1))
// stored as a sparse diagonal matrix.
// A row of Q summing to zero is a DegenerateRow error; it is never divided.
func Transition(adj *graph.Adjacency) (*CSR, error) {
	q, err := Counts(adj)
	if err != nil {
		return nil, err
	}
	sums := q.RowSums()
	inv := make([]float64, len(sums))
	for i, s := range sums {
		if s == 0 {
			return nil, crerrors.DegenerateRow(i)
		}
		inv[i] = 1 / s
	}
	return q.ScaleRows(inv)
}

// Options configures BuildOrLoad.
type Options struct {
	CachePath   string
	Compression cache.Compression
	// Force ignores an existing cache, set when the adjacency was rebuilt.
	Force  bool
	Logger *slog.Logger
}

// BuildOrLoad returns the cached transition matrix for adj or builds and
// caches it. A cached matrix whose dimension differs from adj is treated as
// inconsistent and rebuilt.
func BuildOrLoad(adj *graph.Adjacency, opts Options) (*CSR, bool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var p *CSR
	artifact := cache.Artifact{Kind: cache.KindMatrix, Path: opts.CachePath, Derived: true}
	built, err := cache.LoadOrBuild(artifact, opts.Force, logger,
		func() error {
			var loaded CSR
			if err := cache.Load(opts.CachePath, cache.KindMatrix, Schema, &loaded); err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return crerrors.CorruptCache(opts.CachePath, err)
			}
			if rows, cols := loaded.Dims(); rows != adj.Len() || cols != adj.Len() {
				return crerrors.New(crerrors.ErrCodeInconsistent,
					fmt.Sprintf("matrix is %dx%d, graph has %d concepts", rows, cols, adj.Len()), nil).
					WithDetail("path", opts.CachePath)
			}
			p = &loaded
			return nil
		},
		func() error {
			built, err := Transition(adj)
			if err != nil {
				return err
			}
			p = built
			n, _ := p.Dims()
			logger.Info("transition_built", slog.Int("dimension", n), slog.Int("nnz", p.NNZ()))
			return cache.Save(opts.CachePath, cache.KindMatrix, Schema, opts.Compression, p)
		})
	if err != nil {
		return nil, built, err
	}
	return p, built, nil
}
