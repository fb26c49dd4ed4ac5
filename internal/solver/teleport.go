package solver

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Aman-CERP/conceptrank/internal/matrix"
)

// SeedSet returns the distinct seed indices as a bitmap.
func SeedSet(seeds []int) *roaring.Bitmap {
	bm := roaring.New()
	for _, s := range seeds {
		bm.Add(uint32(s))
	}
	return bm
}

// Teleport is the teleportation matrix J: for every distinct seed s, column
// s holds 1 in every row. J is never stored; its n·k entries are implied by
// the seed set.
type Teleport struct {
	n     int
	set   *roaring.Bitmap
	seeds []uint32 // ascending
}

// NewTeleport builds J for n concepts. J is not normalized; Combine divides
// by the seed count.
func NewTeleport(seeds []int, n int) (*Teleport, error) {
	if n <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", n)
	}
	for _, s := range seeds {
		if s < 0 || s >= n {
			return nil, fmt.Errorf("seed index %d outside [0, %d)", s, n)
		}
	}
	set := SeedSet(seeds)
	return &Teleport{n: n, set: set, seeds: set.ToArray()}, nil
}

// Seeds returns the number of distinct seeds.
func (j *Teleport) Seeds() int { return len(j.seeds) }

// NNZ returns the number of implied non-zero entries.
func (j *Teleport) NNZ() int { return j.n * len(j.seeds) }

// at returns entry (r, c).
func (j *Teleport) at(r, c int) float64 {
	if r < 0 || r >= j.n || c < 0 || c >= j.n || !j.set.Contains(uint32(c)) {
		return 0
	}
	return 1
}

// Combined is P1 = (1−α)·P + (α/k)·J applied as a linear operator. Products
// cost one sparse product with P plus O(n).
type Combined struct {
	p     *matrix.CSR
	j     *Teleport
	alpha float64
	n     int
}

// Combine returns P1 = (1−α)·P + (α/k)·J where k is the seed count of j.
func Combine(p *matrix.CSR, j *Teleport, alpha float64) (*Combined, error) {
	if j.Seeds() <= 0 {
		return nil, fmt.Errorf("seed count must be positive, got %d", j.Seeds())
	}
	r, c := p.Dims()
	if r != c || r != j.n {
		return nil, fmt.Errorf("transition matrix is %dx%d, teleport is %dx%d", r, c, j.n, j.n)
	}
	return &Combined{p: p, j: j, alpha: alpha, n: r}, nil
}

func (c *Combined) weight() float64 { return c.alpha / float64(c.j.Seeds()) }

// at returns entry (r, col).
func (c *Combined) at(r, col int) float64 {
	return (1-c.alpha)*c.p.At(r, col) + c.weight()*c.j.at(r, col)
}

// mulVec computes y = P1·x = (1−α)·P·x + (α/k)·(Σ_{s∈S} x_s)·1.
func (c *Combined) mulVec(x, y []float64) {
	c.p.MulVec(x, y)
	var seedSum float64
	for _, s := range c.j.seeds {
		seedSum += x[s]
	}
	add := c.weight() * seedSum
	for i := range y {
		y[i] = (1-c.alpha)*y[i] + add
	}
}

// MulVecT computes y = P1ᵗ·x = (1−α)·Pᵗ·x + (α/k)·(Σx)·e_S.
func (c *Combined) MulVecT(x, y []float64) {
	c.p.MulVecT(x, y)
	var total float64
	for i := range x {
		total += x[i]
		y[i] *= 1 - c.alpha
	}
	add := c.weight() * total
	for _, s := range c.j.seeds {
		y[s] += add
	}
}

// rowSums returns P1·1.
func (c *Combined) rowSums() []float64 {
	ones := make([]float64, c.n)
	for i := range ones {
		ones[i] = 1
	}
	sums := make([]float64, c.n)
	c.mulVec(ones, sums)
	return sums
}

// transposed applies P1ᵗ as an Operator.
type transposed struct {
	c *Combined
}

func (o transposed) Dim() int             { return o.c.n }
func (o transposed) Apply(x, y []float64) { o.c.MulVecT(x, y) }
