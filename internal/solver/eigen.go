package solver

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Operator applies a square linear map: y = A·x.
type Operator interface {
	Dim() int
	Apply(x, y []float64)
}

// Eigenpair is an approximate eigenvalue with its unit-norm eigenvector.
type Eigenpair struct {
	Value    complex128
	Vector   []complex128
	Residual float64
}

// Stats describes the work an eigensolver did.
type Stats struct {
	Method     string
	Iterations int
	Restarts   int
}

// ErrNotConverged is returned when the iteration budget runs out.
var ErrNotConverged = fmt.Errorf("eigensolver did not converge")

type arnoldiParams struct {
	nev         int
	krylovDim   int
	maxRestarts int
	convergence float64
	// accept, when set, ends the iteration as soon as one converged pair
	// satisfies it, without waiting for the other wanted pairs.
	accept func(complex128) bool
}

// arnoldi computes the nev largest-magnitude eigenpairs of op with an
// explicitly restarted Arnoldi iteration. The Hessenberg eigenproblem of
// each cycle is solved densely. With p.accept set, the first converged pair
// it accepts is returned alone.
func arnoldi(ctx context.Context, op Operator, start []float64, p arnoldiParams) ([]Eigenpair, Stats, error) {
	n := op.Dim()
	stats := Stats{Method: "arnoldi"}
	m := p.krylovDim
	if m < 2*p.nev+1 {
		m = 2*p.nev + 1
	}
	if m > n {
		m = n
	}
	nev := p.nev
	if nev > m {
		nev = m
	}

	v := make([][]float64, m+1)
	for i := range v {
		v[i] = make([]float64, n)
	}
	h := make([]float64, (m+1)*m) // row-major (m+1)×m
	w := make([]float64, n)

	copy(v[0], start)
	if normalize(v[0]) == 0 {
		return nil, stats, fmt.Errorf("start vector is zero")
	}

	for restart := 0; restart <= p.maxRestarts; restart++ {
		stats.Restarts = restart
		clear(h)

		// Build the Krylov basis; k is its final size.
		k := m
		var beta float64
		for j := 0; j < m; j++ {
			if err := ctx.Err(); err != nil {
				return nil, stats, err
			}
			op.Apply(v[j], w)
			stats.Iterations++

			// Modified Gram–Schmidt with one reorthogonalization pass.
			for pass := 0; pass < 2; pass++ {
				for i := 0; i <= j; i++ {
					d := dot(v[i], w)
					h[i*m+j] += d
					axpy(-d, v[i], w)
				}
			}
			beta = norm2(w)
			if j+1 < m {
				h[(j+1)*m+j] = beta
			}
			if beta <= 1e-14 {
				k = j + 1
				beta = 0
				break
			}
			for t := range w {
				v[j+1][t] = w[t] / beta
			}
		}

		hk := mat.NewDense(k, k, nil)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				hk.Set(i, j, h[i*m+j])
			}
		}
		var eig mat.Eigen
		if !eig.Factorize(hk, mat.EigenRight) {
			return nil, stats, fmt.Errorf("hessenberg eigen-decomposition failed")
		}
		values := eig.Values(nil)
		var vecs mat.CDense
		eig.VectorsTo(&vecs)

		order := make([]int, k)
		for i := range order {
			order[i] = i
		}
		// Largest magnitude first; among equal magnitudes the larger real
		// part wins, so 1 precedes -1 on periodic chains.
		sort.SliceStable(order, func(a, b int) bool {
			va, vb := values[order[a]], values[order[b]]
			ma, mb := cmplx.Abs(va), cmplx.Abs(vb)
			if math.Abs(ma-mb) > 1e-12*math.Max(1, ma) {
				return ma > mb
			}
			return real(va) > real(vb)
		})

		want := nev
		if want > k {
			want = k
		}
		converged := true
		pairs := make([]Eigenpair, want)
		for r := 0; r < want; r++ {
			idx := order[r]
			res := math.Abs(beta) * cmplx.Abs(vecs.At(k-1, idx))
			pairs[r] = Eigenpair{Value: values[idx], Residual: res}
			if res > p.convergence*math.Max(1, cmplx.Abs(values[idx])) {
				converged = false
				continue
			}
			if p.accept != nil && p.accept(values[idx]) {
				pairs[r].Vector = ritzVector(v[:k], &vecs, idx)
				return []Eigenpair{pairs[r]}, stats, nil
			}
		}

		if converged {
			for r := range pairs {
				pairs[r].Vector = ritzVector(v[:k], &vecs, order[r])
			}
			return pairs, stats, nil
		}

		// Restart from the sum of the real parts of the wanted Ritz vectors.
		next := make([]float64, n)
		for r := 0; r < want; r++ {
			x := ritzVector(v[:k], &vecs, order[r])
			for t := range next {
				next[t] += real(x[t])
			}
		}
		if normalize(next) == 0 {
			return nil, stats, fmt.Errorf("restart vector vanished")
		}
		copy(v[0], next)
	}
	return nil, stats, ErrNotConverged
}

// ritzVector returns V·y for column col of the Hessenberg eigenvectors.
func ritzVector(basis [][]float64, vecs *mat.CDense, col int) []complex128 {
	n := len(basis[0])
	x := make([]complex128, n)
	for i, b := range basis {
		y := vecs.At(i, col)
		if y == 0 {
			continue
		}
		for t := 0; t < n; t++ {
			x[t] += complex(b[t], 0) * y
		}
	}
	return x
}

type powerParams struct {
	maxIterations int
	convergence   float64
}

// power computes the dominant eigenpair by power iteration.
func power(ctx context.Context, op Operator, start []float64, p powerParams) ([]Eigenpair, Stats, error) {
	n := op.Dim()
	stats := Stats{Method: "power"}
	x := make([]float64, n)
	y := make([]float64, n)
	copy(x, start)
	if normalize(x) == 0 {
		return nil, stats, fmt.Errorf("start vector is zero")
	}

	for it := 1; it <= p.maxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		op.Apply(x, y)
		stats.Iterations = it

		lambda := dot(x, y) // Rayleigh quotient, ‖x‖ = 1
		var res float64
		for t := range y {
			d := y[t] - lambda*x[t]
			res += d * d
		}
		res = math.Sqrt(res)

		if res <= p.convergence*math.Max(1, math.Abs(lambda)) {
			vec := make([]complex128, n)
			for t := range x {
				vec[t] = complex(x[t], 0)
			}
			return []Eigenpair{{Value: complex(lambda, 0), Vector: vec, Residual: res}}, stats, nil
		}

		if normalize(y) == 0 {
			return nil, stats, fmt.Errorf("iterate vanished")
		}
		x, y = y, x
	}
	return nil, stats, ErrNotConverged
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func axpy(alpha float64, x, y []float64) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

func norm2(x []float64) float64 {
	return math.Sqrt(dot(x, x))
}

// normalize scales x to unit 2-norm and returns the original norm.
func normalize(x []float64) float64 {
	nrm := norm2(x)
	if nrm == 0 {
		return 0
	}
	for i := range x {
		x[i] /= nrm
	}
	return nrm
}
