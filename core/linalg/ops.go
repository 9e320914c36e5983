package linalg

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

// Dot returns w·x. It panics with a DimensionError when lengths differ.
func Dot(x Vector, w *mat.VecDense) float64 {
	if x.Len() != w.Len() {
		panic(errors.NewDimensionError("linalg.Dot", w.Len(), x.Len(), 1))
	}
	return DotAt(x, w, 0)
}

// DotAt returns the dot product of x with the block w[offset : offset+x.Len()].
func DotAt(x Vector, w *mat.VecDense, offset int) float64 {
	n := x.Len()
	if offset < 0 || offset+n > w.Len() {
		panic(errors.NewDimensionError("linalg.DotAt", offset+n, w.Len(), 1))
	}
	wr := w.RawVector()
	if d, ok := x.(*Dense); ok && wr.Inc == 1 {
		if xr := d.RawVector(); xr.Inc == 1 {
			return floats.Dot(xr.Data[:n], wr.Data[offset:offset+n])
		}
	}
	sum := 0.0
	x.DoNonZero(func(i int, v float64) {
		sum += v * wr.Data[(offset+i)*wr.Inc]
	})
	return sum
}

// Axpy adds alpha·x into y. Only positions of active entries of x are written.
func Axpy(alpha float64, x Vector, y *mat.VecDense) {
	if x.Len() != y.Len() {
		panic(errors.NewDimensionError("linalg.Axpy", y.Len(), x.Len(), 1))
	}
	AxpyAt(alpha, x, y, 0)
}

// AxpyAt adds alpha·x into the block y[offset : offset+x.Len()].
func AxpyAt(alpha float64, x Vector, y *mat.VecDense, offset int) {
	n := x.Len()
	if offset < 0 || offset+n > y.Len() {
		panic(errors.NewDimensionError("linalg.AxpyAt", offset+n, y.Len(), 1))
	}
	yr := y.RawVector()
	x.DoNonZero(func(i int, v float64) {
		yr.Data[(offset+i)*yr.Inc] += alpha * v
	})
}

// AppendBias returns a copy of x with a trailing 1.0 entry.
func AppendBias(x Vector) Vector {
	n := x.Len()
	if s, ok := x.(*Sparse); ok {
		idx := make([]int, len(s.indices), len(s.indices)+1)
		val := make([]float64, len(s.values), len(s.values)+1)
		copy(idx, s.indices)
		copy(val, s.values)
		return NewSparse(n+1, append(idx, n), append(val, 1.0))
	}
	data := make([]float64, n+1)
	for i := 0; i < n; i++ {
		data[i] = x.AtVec(i)
	}
	data[n] = 1.0
	return NewDense(data)
}

// Concat stacks a and b into a single dense vector [a; b].
func Concat(a, b []float64) *Dense {
	data := make([]float64, 0, len(a)+len(b))
	data = append(data, a...)
	data = append(data, b...)
	return NewDense(data)
}

// ToSlice copies x into a new slice.
func ToSlice(x mat.Vector) []float64 {
	out := make([]float64, x.Len())
	for i := range out {
		out[i] = x.AtVec(i)
	}
	return out
}
