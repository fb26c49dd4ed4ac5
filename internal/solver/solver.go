// Package solver computes the stationary distribution of the random walk
// with restart: the eigenvector of P1ᵗ for eigenvalue 1, where
// P1 = (1−α)·P + (α/k)·J combines the transition matrix with the
// seed teleportation matrix. P1 is applied implicitly and never stored.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
	"github.com/Aman-CERP/conceptrank/internal/matrix"
)

// Methods and eigenpair policies.
const (
	MethodArnoldi = "arnoldi"
	MethodPower   = "power"

	EigenpairsSingle = "single"
	EigenpairsSeeds  = "seeds"
)

// Config tunes the solver.
type Config struct {
	Method     string
	Eigenpairs string
	// Tolerance is the relative distance from 1 accepted for the stationary eigenvalue.
	Tolerance     float64
	KrylovDim     int
	MaxRestarts   int
	MaxIterations int
	// Convergence is the eigenpair residual threshold.
	Convergence float64
}

// DefaultConfig mirrors the defaults of the configuration file.
func DefaultConfig() Config {
	return Config{
		Method:        MethodArnoldi,
		Eigenpairs:    EigenpairsSingle,
		Tolerance:     1e-6,
		KrylovDim:     20,
		MaxRestarts:   300,
		MaxIterations: 10000,
		Convergence:   1e-10,
	}
}

// Result is a solved stationary distribution.
type Result struct {
	// Scores is the min-max normalized stationary vector, indexed by concept.
	Scores     []float64
	Eigenvalue complex128
	Residual   float64
	Stats      Stats
	// Degenerate is set when every component was equal and Scores fell back to zeros.
	Degenerate bool
	Elapsed    time.Duration
}

// Solver is safe for concurrent use; it holds configuration only.
type Solver struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a solver.
func New(cfg Config, logger *slog.Logger) *Solver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Solver{cfg: cfg, logger: logger}
}

// Solve returns the stationary distribution for the given distinct seed
// indices and restart probability alpha. Failures to find an eigenvalue
// near 1, including context expiry, are NoStationaryEigenvalue errors.
func (s *Solver) Solve(ctx context.Context, p *matrix.CSR, seeds []int, alpha float64) (*Result, error) {
	start := time.Now()
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, crerrors.InvalidParameter(fmt.Sprintf("damping must be in [0, 1], got %v", alpha))
	}
	n, _ := p.Dims()

	j, err := NewTeleport(seeds, n)
	if err != nil {
		return nil, crerrors.InvalidParameter(err.Error())
	}
	k := j.Seeds()
	p1, err := Combine(p, j, alpha)
	if err != nil {
		return nil, crerrors.InvalidParameter(err.Error())
	}
	op := transposed{c: p1}

	startVec := make([]float64, n)
	for i := range startVec {
		startVec[i] = 1
	}

	var (
		pairs []Eigenpair
		stats Stats
	)
	switch s.cfg.Method {
	case MethodPower:
		pairs, stats, err = power(ctx, op, startVec, powerParams{
			maxIterations: s.cfg.MaxIterations,
			convergence:   s.cfg.Convergence,
		})
	default:
		nev := 1
		if s.cfg.Eigenpairs == EigenpairsSeeds {
			nev = min(k, max(n-1, 1))
		}
		pairs, stats, err = arnoldi(ctx, op, startVec, arnoldiParams{
			nev:         nev,
			krylovDim:   s.cfg.KrylovDim,
			maxRestarts: s.cfg.MaxRestarts,
			convergence: s.cfg.Convergence,
			accept: func(v complex128) bool {
				return isClose(real(v), 1, s.cfg.Tolerance)
			},
		})
	}
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, crerrors.NoStationaryEigenvalue("solver stopped before converging", err).
				WithDetail("iterations", fmt.Sprint(stats.Iterations))
		case errors.Is(err, ErrNotConverged):
			return nil, crerrors.NoStationaryEigenvalue("eigensolver did not converge", err).
				WithDetail("iterations", fmt.Sprint(stats.Iterations))
		default:
			return nil, crerrors.NoStationaryEigenvalue("eigensolver failed", err)
		}
	}

	pair, ok := selectStationary(pairs, s.cfg.Tolerance)
	if !ok {
		vals := make([]string, len(pairs))
		for i, pr := range pairs {
			vals[i] = fmt.Sprintf("%.8g", pr.Value)
		}
		return nil, crerrors.NoStationaryEigenvalue(
			fmt.Sprintf("no eigenvalue within %g of 1 (found %v)", s.cfg.Tolerance, vals), nil)
	}

	vec := orient(realPart(pair.Vector))
	scores, degenerate, err := minMax(vec)
	if err != nil {
		return nil, crerrors.NoStationaryEigenvalue("stationary vector is not finite", err)
	}
	if degenerate {
		s.logger.Warn("degenerate_distribution",
			slog.String("error_code", crerrors.ErrCodeDegenerateDistribution),
			slog.Int("dimension", n))
	}

	res := &Result{
		Scores:     scores,
		Eigenvalue: pair.Value,
		Residual:   pair.Residual,
		Stats:      stats,
		Degenerate: degenerate,
		Elapsed:    time.Since(start),
	}
	s.logger.Debug("solve_completed",
		slog.String("method", stats.Method),
		slog.Int("iterations", stats.Iterations),
		slog.Int("restarts", stats.Restarts),
		slog.Int("teleport_entries", j.NNZ()),
		slog.Float64("eigenvalue", real(pair.Value)),
		slog.Float64("residual", pair.Residual),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}

// selectStationary picks the first pair whose eigenvalue has real part 1
// within the relative tolerance. The imaginary part is not checked.
func selectStationary(pairs []Eigenpair, tol float64) (Eigenpair, bool) {
	for _, p := range pairs {
		if isClose(real(p.Value), 1, tol) {
			return p, true
		}
	}
	return Eigenpair{}, false
}

func isClose(a, b, rel float64) bool {
	return math.Abs(a-b) <= rel*math.Max(math.Abs(a), math.Abs(b))
}

func realPart(v []complex128) []float64 {
	out := make([]float64, len(v))
	for i, c := range v {
		out[i] = real(c)
	}
	return out
}

// orient flips v so that its components sum to a non-negative value; the
// Perron vector is non-negative but a solver may return it negated.
func orient(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	if sum < 0 {
		for i := range v {
			v[i] = -v[i]
		}
	}
	return v
}

// minMax rescales v to [0, 1]. When all components are equal the result is
// all zeros and degenerate is true.
func minMax(v []float64) (out []float64, degenerate bool, err error) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false, fmt.Errorf("component %v", x)
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	out = make([]float64, len(v))
	if len(v) == 0 || hi == lo {
		return out, true, nil
	}
	span := hi - lo
	for i, x := range v {
		out[i] = (x - lo) / span
	}
	return out, false, nil
}
