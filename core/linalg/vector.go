// Package linalg is the vector boundary of the gradient core.
//
// Feature vectors are either dense or sparse. Both satisfy gonum's mat.Vector
// and additionally expose iteration over their active (non-zero) entries, which
// is what the gradient strategies use so that they never need to know the
// backing representation. Weights and gradient accumulators are always dense
// *mat.VecDense.
package linalg

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

// Vector is a feature vector.
type Vector interface {
	mat.Vector

	// DoNonZero calls fn for every active entry in increasing index order.
	// Entries whose value is zero are skipped even when explicitly stored.
	DoNonZero(fn func(i int, v float64))

	// NNZ returns the number of active entries.
	NNZ() int
}

// Dense is a densely stored feature vector.
type Dense struct {
	*mat.VecDense
}

// NewDense wraps data without copying it.
func NewDense(data []float64) *Dense {
	return &Dense{VecDense: mat.NewVecDense(len(data), data)}
}

// DenseOf wraps an existing *mat.VecDense.
func DenseOf(v *mat.VecDense) *Dense {
	return &Dense{VecDense: v}
}

// DoNonZero implements Vector.
func (d *Dense) DoNonZero(fn func(i int, v float64)) {
	raw := d.RawVector()
	for i := 0; i < raw.N; i++ {
		if v := raw.Data[i*raw.Inc]; v != 0 {
			fn(i, v)
		}
	}
}

// NNZ implements Vector.
func (d *Dense) NNZ() int {
	n := 0
	d.DoNonZero(func(int, float64) { n++ })
	return n
}

// Sparse stores (index, value) pairs with strictly increasing indices.
type Sparse struct {
	n       int
	indices []int
	values  []float64
}

// NewSparse builds a sparse vector of length n. It panics with a
// ValueError when indices are unsorted, duplicated or out of range, and
// with a DimensionError when indices and values differ in length.
func NewSparse(n int, indices []int, values []float64) *Sparse {
	if len(indices) != len(values) {
		panic(errors.NewDimensionError("linalg.NewSparse", len(indices), len(values), 1))
	}
	if n <= 0 {
		panic(errors.NewValueError("linalg.NewSparse", "length must be positive"))
	}
	for k, idx := range indices {
		if idx < 0 || idx >= n {
			panic(errors.NewValueError("linalg.NewSparse", "index out of range"))
		}
		if k > 0 && idx <= indices[k-1] {
			panic(errors.NewValueError("linalg.NewSparse", "indices must be strictly increasing"))
		}
	}
	return &Sparse{n: n, indices: indices, values: values}
}

// Len implements mat.Vector.
func (s *Sparse) Len() int { return s.n }

// Dims implements mat.Matrix; a Sparse is a column vector.
func (s *Sparse) Dims() (r, c int) { return s.n, 1 }

// At implements mat.Matrix.
func (s *Sparse) At(i, j int) float64 {
	if j != 0 {
		panic(mat.ErrColAccess)
	}
	return s.AtVec(i)
}

// AtVec implements mat.Vector.
func (s *Sparse) AtVec(i int) float64 {
	if i < 0 || i >= s.n {
		panic(mat.ErrVectorAccess)
	}
	k := sort.SearchInts(s.indices, i)
	if k < len(s.indices) && s.indices[k] == i {
		return s.values[k]
	}
	return 0
}

// T implements mat.Matrix.
func (s *Sparse) T() mat.Matrix {
	return mat.TransposeVec{Vector: s}
}

// DoNonZero implements Vector.
func (s *Sparse) DoNonZero(fn func(i int, v float64)) {
	for k, idx := range s.indices {
		if v := s.values[k]; v != 0 {
			fn(idx, v)
		}
	}
}

// NNZ implements Vector.
func (s *Sparse) NNZ() int {
	n := 0
	for _, v := range s.values {
		if v != 0 {
			n++
		}
	}
	return n
}

// Indices returns the stored indices. The slice must not be modified.
func (s *Sparse) Indices() []int { return s.indices }

// Values returns the stored values. The slice must not be modified.
func (s *Sparse) Values() []float64 { return s.values }
