package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/conceptrank/internal/corpus"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/graph"
	"github.com/Aman-CERP/conceptrank/internal/labelindex"
	"github.com/Aman-CERP/conceptrank/internal/matrix"
	"github.com/Aman-CERP/conceptrank/internal/querylog"
	"github.com/Aman-CERP/conceptrank/internal/registry"
)

// pathCorpus is A–B–C–D–E with external ids 1..5 plus a label-only id 99.
func pathCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	adj := graph.Build([]graph.Edge{{Source: 1, Target: 2}, {Source: 2, Target: 3}, {Source: 3, Target: 4}, {Source: 4, Target: 5}}, true)
	p, err := matrix.Transition(adj)
	require.NoError(t, err)
	reg := registry.New(adj.ExternalIDs)
	reg.AddLabels([]registry.LabelRecord{
		{ExternalID: 1, Label: "Alpha"},
		{ExternalID: 2, Label: "Bravo"},
		{ExternalID: 3, Label: "Charlie"},
		{ExternalID: 4, Label: "Delta"},
		{ExternalID: 5, Label: "Echo"},
		{ExternalID: 99, Label: "Orphan"},
	})
	return &corpus.Corpus{Adjacency: adj, Registry: reg, P: p}
}

type fakeSink struct {
	mu   sync.Mutex
	recs []querylog.Record
	err  error
}

func (f *fakeSink) Record(_ context.Context, rec querylog.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

func newEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := New(pathCorpus(t), DefaultEngineConfig(), opts...)
	require.NoError(t, err)
	return e
}

func damping(a float64) *float64 { return &a }

func TestRank_PathGraphTopTwo(t *testing.T) {
	// Given: the path graph and seed A
	e := newEngine(t)

	// When: ranking with alpha 0.2, topN 2
	resp, err := e.Rank(context.Background(), Query{Seeds: []int64{1}, Damping: damping(0.2), TopN: 2})

	// Then: B then C
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, int64(2), resp.Results[0].ExternalID)
	assert.Equal(t, "Bravo", resp.Results[0].Label)
	assert.Equal(t, int64(3), resp.Results[1].ExternalID)
	assert.InDelta(t, 1.0, resp.Results[0].Score, 1e-6)
	assert.InDelta(t, 0.45614, resp.Results[1].Score, 1e-4)
	assert.InDelta(t, 1.0, resp.Eigenvalue, 1e-9)
	assert.Equal(t, 1, resp.SeedCount)
	assert.NotEmpty(t, resp.QueryID)
}

func TestRank_FullOrderingExcludesSeed(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Rank(context.Background(), Query{Seeds: []int64{1}, TopN: 10})
	require.NoError(t, err)

	ids := make([]int64, len(resp.Results))
	for i, r := range resp.Results {
		ids[i] = r.ExternalID
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.Equal(t, []int64{2, 3, 4, 5}, ids)
	assert.Equal(t, 0.2, resp.Alpha)
}

func TestRank_RejectsInvalidQueries(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		name string
		q    Query
		code string
	}{
		{"damping above one", Query{Seeds: []int64{1}, Damping: damping(1.5), TopN: 2}, crerrors.ErrCodeInvalidParameter},
		{"negative damping", Query{Seeds: []int64{1}, Damping: damping(-0.1), TopN: 2}, crerrors.ErrCodeInvalidParameter},
		{"NaN damping", Query{Seeds: []int64{1}, Damping: damping(math.NaN()), TopN: 2}, crerrors.ErrCodeInvalidParameter},
		{"zero topN", Query{Seeds: []int64{1}, TopN: 0}, crerrors.ErrCodeInvalidParameter},
		{"no seeds", Query{TopN: 2}, crerrors.ErrCodeInvalidParameter},
		{"unknown seed", Query{Seeds: []int64{42}, TopN: 2}, crerrors.ErrCodeUnknownSeed},
		{"label-only seed", Query{Seeds: []int64{99}, TopN: 2}, crerrors.ErrCodeUnknownSeed},
		{"labels without index", Query{SeedLabels: []string{"Alpha"}, TopN: 2}, crerrors.ErrCodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Rank(context.Background(), tt.q)
			require.Error(t, err)
			assert.True(t, crerrors.HasCode(err, tt.code), err.Error())
			assert.False(t, crerrors.IsFatal(err))
		})
	}
}

func TestRank_BoundaryDamping(t *testing.T) {
	e := newEngine(t)
	for _, a := range []float64{0.0, 1.0} {
		resp, err := e.Rank(context.Background(), Query{Seeds: []int64{3}, Damping: damping(a), TopN: 4})
		require.NoError(t, err, "alpha=%v", a)
		assert.Len(t, resp.Results, 4)
	}
}

func TestRank_DuplicateSeedsCollapse(t *testing.T) {
	e := newEngine(t)
	once, err := e.Rank(context.Background(), Query{Seeds: []int64{1}, TopN: 3})
	require.NoError(t, err)
	twice, err := e.Rank(context.Background(), Query{Seeds: []int64{1, 1}, TopN: 3})
	require.NoError(t, err)

	assert.Equal(t, 1, twice.SeedCount)
	assert.Equal(t, once.Results, twice.Results)
	assert.True(t, twice.Cached)
}

func TestRank_ResultCache(t *testing.T) {
	e := newEngine(t)
	first, err := e.Rank(context.Background(), Query{ID: "a", Seeds: []int64{5, 1}, TopN: 2})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := e.Rank(context.Background(), Query{ID: "b", Seeds: []int64{1, 5}, TopN: 2})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, "b", second.QueryID)
	assert.Equal(t, first.Results, second.Results)

	third, err := e.Rank(context.Background(), Query{Seeds: []int64{1, 5}, TopN: 3})
	require.NoError(t, err)
	assert.False(t, third.Cached)
}

func TestRank_MetricsCountEveryOutcome(t *testing.T) {
	// Given: an engine
	e := newEngine(t)

	// When: one miss, one cache hit, one unknown seed
	_, err := e.Rank(context.Background(), Query{Seeds: []int64{1}, TopN: 2})
	require.NoError(t, err)
	_, err = e.Rank(context.Background(), Query{Seeds: []int64{1}, TopN: 2})
	require.NoError(t, err)
	_, err = e.Rank(context.Background(), Query{Seeds: []int64{42}, TopN: 2})
	require.Error(t, err)

	// Then: the snapshot counts all three
	m := e.Metrics()
	assert.Equal(t, int64(3), m.Total)
	assert.Equal(t, int64(1), m.Failed)
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(1), m.ErrorCodes[crerrors.ErrCodeUnknownSeed])
	require.NotEmpty(t, m.TopSeeds)
	assert.Equal(t, int64(1), m.TopSeeds[0].ID)
	assert.Equal(t, int64(2), m.TopSeeds[0].Count)
}

func TestRank_SymmetricSeedsTieBreakByIndex(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Rank(context.Background(), Query{Seeds: []int64{1, 5}, TopN: 3})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	// B and D are symmetric; C is the minimum
	assert.InDelta(t, resp.Results[0].Score, resp.Results[1].Score, 1e-8)
	assert.ElementsMatch(t, []int64{2, 4}, []int64{resp.Results[0].ExternalID, resp.Results[1].ExternalID})
	assert.Equal(t, int64(3), resp.Results[2].ExternalID)
}

func TestRank_SeedLabels(t *testing.T) {
	c := pathCorpus(t)
	idx, err := labelindex.Open(context.Background(), c.Registry, "", nil)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	e, err := New(c, DefaultEngineConfig(), WithLabelIndex(idx))
	require.NoError(t, err)

	byLabel, err := e.Rank(context.Background(), Query{SeedLabels: []string{"alpha"}, TopN: 2})
	require.NoError(t, err)
	byID, err := e.Rank(context.Background(), Query{Seeds: []int64{1}, TopN: 2})
	require.NoError(t, err)
	assert.Equal(t, byID.Results, byLabel.Results)

	_, err = e.Rank(context.Background(), Query{SeedLabels: []string{"orphan"}, TopN: 2})
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeInvalidParameter))
}

func TestRank_TimeoutFailsQueryOnly(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Timeout = time.Nanosecond
	e, err := New(pathCorpus(t), cfg)
	require.NoError(t, err)

	_, err = e.Rank(context.Background(), Query{Seeds: []int64{1}, TopN: 2})
	require.Error(t, err)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeNoStationary))
}

func TestRank_RecordsToSink(t *testing.T) {
	sink := &fakeSink{}
	e := newEngine(t, WithSink(sink))

	resp, err := e.Rank(context.Background(), Query{ID: "q-1", Seeds: []int64{1}, TopN: 2})
	require.NoError(t, err)

	require.Equal(t, 1, sink.count())
	rec := sink.recs[0]
	assert.Equal(t, "q-1", rec.QueryID)
	assert.Equal(t, resp.Alpha, rec.Alpha)
	assert.Equal(t, 1, rec.SeedCount)
	assert.Contains(t, rec.Result, `"external_id":2`)
	assert.Equal(t, "closed", e.SinkState())
}

func TestRank_SinkFailureNeverFailsQuery(t *testing.T) {
	// Given: a sink that always fails
	sink := &fakeSink{err: errors.New("database is locked")}
	cfg := DefaultEngineConfig()
	cfg.SinkMaxFailures = 2
	e, err := New(pathCorpus(t), cfg, WithSink(sink))
	require.NoError(t, err)

	// When: running more queries than the breaker tolerates
	for i := 0; i < 4; i++ {
		_, err := e.Rank(context.Background(), Query{Seeds: []int64{1}, TopN: 2})
		require.NoError(t, err)
	}

	// Then: the breaker opened
	assert.Equal(t, "open", e.SinkState())
}

func TestRankBatch_IndependentFailures(t *testing.T) {
	e := newEngine(t)
	out := e.RankBatch(context.Background(), []Query{
		{Seeds: []int64{1}, TopN: 2},
		{Seeds: []int64{42}, TopN: 2},
		{Seeds: []int64{5}, TopN: 1},
	})

	require.Len(t, out, 3)
	require.NoError(t, out[0].Err)
	assert.Equal(t, int64(2), out[0].Response.Results[0].ExternalID)
	assert.True(t, crerrors.HasCode(out[1].Err, crerrors.ErrCodeUnknownSeed))
	require.NoError(t, out[2].Err)
	assert.Equal(t, int64(4), out[2].Response.Results[0].ExternalID)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey([]int{0, 4}, 0.2, 2), cacheKey([]int{0, 4}, 0.2, 2))
	assert.NotEqual(t, cacheKey([]int{0, 4}, 0.2, 2), cacheKey([]int{0, 4}, 0.3, 2))
	assert.NotEqual(t, cacheKey([]int{0, 4}, 0.2, 2), cacheKey([]int{4}, 0.2, 2))
}
