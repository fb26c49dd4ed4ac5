// Package engine answers ranking queries against a loaded corpus.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/conceptrank/internal/config"
	"github.com/Aman-CERP/conceptrank/internal/corpus"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/labelindex"
	"github.com/Aman-CERP/conceptrank/internal/querylog"
	"github.com/Aman-CERP/conceptrank/internal/rank"
	"github.com/Aman-CERP/conceptrank/internal/solver"
	"github.com/Aman-CERP/conceptrank/internal/telemetry"
)

// Query asks for the concepts most related to a seed set.
type Query struct {
	// ID identifies the query in the log; generated when empty.
	ID         string   `json:"id,omitempty"`
	Seeds      []int64  `json:"seeds,omitempty"`
	SeedLabels []string `json:"seed_labels,omitempty"`
	// Damping is the restart probability; nil uses the configured value.
	Damping *float64 `json:"damping,omitempty"`
	TopN    int      `json:"top_n"`
}

// Response is a completed ranking.
type Response struct {
	QueryID    string        `json:"query_id"`
	Alpha      float64       `json:"alpha"`
	SeedCount  int           `json:"seed_count"`
	Results    []rank.Result `json:"results"`
	Eigenvalue float64       `json:"eigenvalue"`
	Residual   float64       `json:"residual"`
	Iterations int           `json:"iterations"`
	Degenerate bool          `json:"degenerate,omitempty"`
	Cached     bool          `json:"cached,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// BatchResult pairs a batch query with its outcome.
type BatchResult struct {
	Response *Response
	Err      error
}

// Sink receives every completed query.
type Sink interface {
	Record(ctx context.Context, rec querylog.Record) error
}

// EngineConfig holds the query-time settings.
type EngineConfig struct {
	Solver    solver.Config
	Damping   float64
	TopN      int
	CacheSize int
	Workers   int
	Timeout   time.Duration
	// SinkMaxFailures opens the sink circuit breaker.
	SinkMaxFailures int
}

// ConfigFrom derives an EngineConfig from the application config.
func ConfigFrom(cfg *config.Config) (EngineConfig, error) {
	timeout, err := cfg.Solver.TimeoutDuration()
	if err != nil {
		return EngineConfig{}, crerrors.ConfigError(err.Error(), err)
	}
	return EngineConfig{
		Solver: solver.Config{
			Method:        cfg.Solver.Method,
			Eigenpairs:    cfg.Solver.Eigenpairs,
			Tolerance:     cfg.Solver.Tolerance,
			KrylovDim:     cfg.Solver.KrylovDim,
			MaxRestarts:   cfg.Solver.MaxRestarts,
			MaxIterations: cfg.Solver.MaxIterations,
			Convergence:   cfg.Solver.Convergence,
		},
		Damping:         cfg.Solver.Damping,
		TopN:            cfg.Ranking.TopN,
		CacheSize:       cfg.Ranking.CacheSize,
		Workers:         cfg.Ranking.Workers,
		Timeout:         timeout,
		SinkMaxFailures: cfg.QueryLog.MaxFailures,
	}, nil
}

// DefaultEngineConfig returns the defaults of a fresh configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Solver:          solver.DefaultConfig(),
		Damping:         0.2,
		TopN:            20,
		CacheSize:       256,
		Workers:         4,
		Timeout:         60 * time.Second,
		SinkMaxFailures: 5,
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	corpus  *corpus.Corpus
	solver  *solver.Solver
	config  EngineConfig
	labels  *labelindex.Index
	sink    Sink
	breaker *crerrors.CircuitBreaker
	cache   *lru.Cache[string, *Response]
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithLabelIndex enables seed labels.
func WithLabelIndex(idx *labelindex.Index) EngineOption {
	return func(e *Engine) {
		e.labels = idx
	}
}

// WithSink hands every completed query to s.
func WithSink(s Sink) EngineOption {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine over c.
func New(c *corpus.Corpus, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	cache, err := lru.New[string, *Response](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}

	e := &Engine{
		corpus: c,
		config: cfg,
		cache:   cache,
		metrics: telemetry.New(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.solver = solver.New(cfg.Solver, e.logger)
	maxFailures := cfg.SinkMaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	e.breaker = crerrors.NewCircuitBreaker("querylog", crerrors.WithMaxFailures(maxFailures))
	return e, nil
}

// Config returns the engine settings.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Corpus returns the corpus the engine ranks over.
func (e *Engine) Corpus() *corpus.Corpus {
	return e.corpus
}

// Labels returns the label index, or nil when labels are disabled.
func (e *Engine) Labels() *labelindex.Index {
	return e.labels
}

// SinkState reports the query log circuit breaker state.
func (e *Engine) SinkState() string {
	if e.sink == nil {
		return "disabled"
	}
	return e.breaker.State().String()
}

// Metrics returns a snapshot of the query counters.
func (e *Engine) Metrics() *telemetry.Snapshot {
	return e.metrics.Snapshot()
}

// Rank answers one query. Invalid queries are rejected before any matrix
// work; a solver failure fails this query only.
func (e *Engine) Rank(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	resp, err := e.rank(ctx, q, start)

	ev := telemetry.RankEvent{QueryID: q.ID, Seeds: q.Seeds, Latency: time.Since(start)}
	if err != nil {
		ev.ErrCode = crerrors.GetCode(err)
		if ev.ErrCode == "" {
			ev.ErrCode = crerrors.ErrCodeInternal
		}
	} else {
		ev.Results = len(resp.Results)
		ev.Cached = resp.Cached
		ev.Degenerate = resp.Degenerate
	}
	e.metrics.Record(ev)
	return resp, err
}

func (e *Engine) rank(ctx context.Context, q Query, start time.Time) (*Response, error) {
	alpha := e.config.Damping
	if q.Damping != nil {
		alpha = *q.Damping
	}
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, crerrors.InvalidParameter(fmt.Sprintf("damping must be in [0, 1], got %v", alpha))
	}
	if q.TopN <= 0 {
		return nil, crerrors.InvalidParameter(fmt.Sprintf("topN must be positive, got %d", q.TopN))
	}
	if len(q.Seeds) == 0 && len(q.SeedLabels) == 0 {
		return nil, crerrors.InvalidParameter("seed set is empty")
	}

	seeds, err := e.resolveSeeds(ctx, q)
	if err != nil {
		return nil, err
	}
	seedIdx := make([]int, 0, seeds.GetCardinality())
	for _, s := range seeds.ToArray() {
		seedIdx = append(seedIdx, int(s))
	}

	key := cacheKey(seedIdx, alpha, q.TopN)
	if hit, ok := e.cache.Get(key); ok {
		resp := *hit
		resp.QueryID = q.ID
		resp.Cached = true
		resp.Elapsed = time.Since(start)
		e.logger.Debug("rank_cache_hit", slog.String("query_id", q.ID))
		e.record(ctx, &resp)
		return &resp, nil
	}

	solveCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()
	res, err := e.solver.Solve(solveCtx, e.corpus.P, seedIdx, alpha)
	if err != nil {
		e.logger.Warn("rank_failed",
			append([]any{slog.String("query_id", q.ID)}, crerrors.LogAttrs(err)...)...)
		return nil, err
	}

	results, err := rank.Rank(res.Scores, seeds, q.TopN, e.corpus.Registry)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		QueryID:    q.ID,
		Alpha:      alpha,
		SeedCount:  len(seedIdx),
		Results:    results,
		Eigenvalue: real(res.Eigenvalue),
		Residual:   res.Residual,
		Iterations: res.Stats.Iterations,
		Degenerate: res.Degenerate,
		Elapsed:    time.Since(start),
	}
	e.cache.Add(key, resp)

	e.logger.Info("rank_completed",
		slog.String("query_id", q.ID),
		slog.Int("seeds", len(seedIdx)),
		slog.Float64("alpha", alpha),
		slog.Int("results", len(results)),
		slog.Int("iterations", res.Stats.Iterations),
		slog.Duration("elapsed", resp.Elapsed))

	out := *resp
	e.record(ctx, &out)
	return &out, nil
}

// RankBatch runs queries concurrently, bounded by the configured worker
// count. Results are in query order; one failure does not affect others.
func (e *Engine) RankBatch(ctx context.Context, queries []Query) []BatchResult {
	out := make([]BatchResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Workers)
	for i, q := range queries {
		g.Go(func() error {
			resp, err := e.Rank(gctx, q)
			out[i] = BatchResult{Response: resp, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) resolveSeeds(ctx context.Context, q Query) (*roaring.Bitmap, error) {
	reg := e.corpus.Registry
	seeds := roaring.New()
	for _, id := range q.Seeds {
		idx, ok := reg.Encode(id)
		if !ok || !reg.InGraph(idx) {
			return nil, crerrors.UnknownSeed(id)
		}
		seeds.Add(uint32(idx))
	}
	for _, label := range q.SeedLabels {
		if e.labels == nil {
			return nil, crerrors.InvalidParameter("seed labels need the label index (labels.index is off)")
		}
		idx, err := e.labels.Resolve(ctx, label)
		if err != nil {
			return nil, err
		}
		seeds.Add(uint32(idx))
	}
	return seeds, nil
}

// record hands resp to the sink. Failures are logged and never returned.
func (e *Engine) record(ctx context.Context, resp *Response) {
	if e.sink == nil {
		return
	}
	payload, err := json.Marshal(resp.Results)
	if err != nil {
		e.logger.Warn("querylog_encode_failed", slog.String("error", err.Error()))
		return
	}
	rec := querylog.Record{
		QueryID:   resp.QueryID,
		Timestamp: time.Now(),
		Alpha:     resp.Alpha,
		SeedCount: resp.SeedCount,
		Result:    string(payload),
	}
	err = e.breaker.Execute(func() error {
		return e.sink.Record(context.WithoutCancel(ctx), rec)
	})
	if err != nil {
		e.logger.Warn("querylog_record_failed",
			append([]any{
				slog.String("query_id", resp.QueryID),
				slog.String("breaker", e.breaker.State().String()),
			}, crerrors.LogAttrs(err)...)...)
	}
}

func cacheKey(seeds []int, alpha float64, topN int) string {
	var b strings.Builder
	for i, s := range seeds {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(s))
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatUint(math.Float64bits(alpha), 16))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(topN))
	return b.String()
}
