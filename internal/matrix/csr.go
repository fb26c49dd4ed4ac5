// Package matrix builds the row-stochastic transition matrix of the concept
// graph. Storage and products use the CSR type of james-bowman/sparse.
package matrix

import (
	"bytes"
	"cmp"
	"encoding/gob"
	"fmt"
	"math"
	"slices"

	"github.com/james-bowman/sparse"
)

// Triplet is one (row, col, value) entry used to assemble a CSR matrix.
type Triplet struct {
	Row   int32
	Col   int32
	Value float64
}

// CSR is a compressed sparse row matrix. Column indices are strictly
// increasing within each row.
type CSR struct {
	m *sparse.CSR
}

// FromTriplets assembles a CSR matrix. Entries are ordered by (row, col) and
// duplicate coordinates are summed in that order, so the result does not
// depend on the order of ts. ts is sorted in place.
func FromTriplets(rows, cols int, ts []Triplet) (*CSR, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("matrix dimensions must be positive, got %dx%d", rows, cols)
	}
	for _, t := range ts {
		if t.Row < 0 || int(t.Row) >= rows || t.Col < 0 || int(t.Col) >= cols {
			return nil, fmt.Errorf("entry (%d, %d) outside %dx%d matrix", t.Row, t.Col, rows, cols)
		}
	}
	slices.SortFunc(ts, func(a, b Triplet) int {
		if c := cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Col, b.Col)
	})

	ri := make([]int, 0, len(ts))
	ci := make([]int, 0, len(ts))
	data := make([]float64, 0, len(ts))
	for k, t := range ts {
		if k > 0 && ts[k-1].Row == t.Row && ts[k-1].Col == t.Col {
			data[len(data)-1] += t.Value
			continue
		}
		ri = append(ri, int(t.Row))
		ci = append(ci, int(t.Col))
		data = append(data, t.Value)
	}
	return &CSR{m: sparse.NewCOO(rows, cols, ri, ci, data).ToCSR()}, nil
}

// Dims returns the number of rows and columns.
func (m *CSR) Dims() (int, int) {
	return m.m.Dims()
}

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int {
	return m.m.NNZ()
}

// At returns entry (i, j), zero if not stored.
func (m *CSR) At(i, j int) float64 {
	return m.m.At(i, j)
}

// MulVec computes y = m·x.
func (m *CSR) MulVec(x, y []float64) {
	clear(y)
	m.m.MulVecTo(y, false, x)
}

// MulVecT computes y = mᵗ·x without forming the transpose.
func (m *CSR) MulVecT(x, y []float64) {
	clear(y)
	m.m.MulVecTo(y, true, x)
}

// RowSums returns m·1.
func (m *CSR) RowSums() []float64 {
	r, c := m.m.Dims()
	ones := make([]float64, c)
	for i := range ones {
		ones[i] = 1
	}
	sums := make([]float64, r)
	m.MulVec(ones, sums)
	return sums
}

// ScaleRows returns diag(d)·m. m is not modified.
func (m *CSR) ScaleRows(d []float64) (*CSR, error) {
	r, _ := m.m.Dims()
	if len(d) != r {
		return nil, fmt.Errorf("scale vector length %d, matrix has %d rows", len(d), r)
	}
	var out sparse.CSR
	out.Mul(sparse.NewDIA(r, r, d), m.m)
	return &CSR{m: &out}, nil
}

// Equal reports whether both matrices store identical entries.
func (m *CSR) Equal(o *CSR) bool {
	a, b := m.m.RawMatrix(), o.m.RawMatrix()
	return a.I == b.I && a.J == b.J &&
		slices.Equal(a.Indptr, b.Indptr) &&
		slices.Equal(a.Ind, b.Ind) &&
		slices.Equal(a.Data, b.Data)
}

// Validate checks structural invariants of a decoded matrix.
func (m *CSR) Validate() error {
	raw := m.m.RawMatrix()
	return validateRaw(raw.I, raw.J, raw.Indptr, raw.Ind, raw.Data)
}

func validateRaw(rows, cols int, indptr, ind []int, data []float64) error {
	if rows <= 0 || cols <= 0 || len(indptr) != rows+1 {
		return fmt.Errorf("row pointer length %d for %d rows", len(indptr), rows)
	}
	if len(ind) != len(data) || indptr[0] != 0 || indptr[rows] != len(data) {
		return fmt.Errorf("row pointers do not span %d entries", len(data))
	}
	for i := 0; i < rows; i++ {
		lo, hi := indptr[i], indptr[i+1]
		if hi < lo || hi > len(ind) {
			return fmt.Errorf("row pointer decreases at row %d", i)
		}
		for k := lo; k < hi; k++ {
			if ind[k] < 0 || ind[k] >= cols || (k > lo && ind[k-1] >= ind[k]) {
				return fmt.Errorf("row %d has invalid column order", i)
			}
			if math.IsNaN(data[k]) || math.IsInf(data[k], 0) {
				return fmt.Errorf("row %d holds a non-finite value", i)
			}
		}
	}
	return nil
}

// csrWire is the gob form of a CSR matrix.
type csrWire struct {
	Rows, Cols int
	Indptr     []int
	Ind        []int
	Data       []float64
}

// GobEncode implements gob.GobEncoder.
func (m *CSR) GobEncode() ([]byte, error) {
	raw := m.m.RawMatrix()
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(csrWire{
		Rows:   raw.I,
		Cols:   raw.J,
		Indptr: raw.Indptr,
		Ind:    raw.Ind,
		Data:   raw.Data,
	})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder. The decoded arrays are validated
// before they back a matrix.
func (m *CSR) GobDecode(b []byte) error {
	var w csrWire
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return err
	}
	if w.Data == nil {
		w.Data = []float64{}
		w.Ind = []int{}
	}
	if err := validateRaw(w.Rows, w.Cols, w.Indptr, w.Ind, w.Data); err != nil {
		return err
	}
	m.m = sparse.NewCSR(w.Rows, w.Cols, w.Indptr, w.Ind, w.Data)
	return nil
}
