// Package optimization implements per-example loss gradients and the
// optimizers that sum them over partitioned data.
//
// Gradient strategies are stateless values. One instance may be shared by
// every partition goroutine; each goroutine owns its accumulation buffer and
// buffers are summed only after all partitions finish.
package optimization

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

// Gradient computes the loss of one example and its gradient with respect to
// the weights.
//
// Dimension mismatches are programming errors and panic with a
// *errors.DimensionError; optimizers recover them at their boundary.
type Gradient interface {
	// Compute returns a newly allocated gradient of weights.Len() and the loss.
	// Neither x nor weights is modified.
	Compute(x linalg.Vector, label float64, weights *mat.VecDense) (*mat.VecDense, float64)

	// ComputeInto adds the gradient into cumGradient and returns the loss.
	// Only positions reached by active entries of x are written.
	ComputeInto(x linalg.Vector, label float64, weights, cumGradient *mat.VecDense) float64
}

// computeNew is the shared Compute implementation: a zeroed buffer passed to ComputeInto.
func computeNew(g Gradient, x linalg.Vector, label float64, weights *mat.VecDense) (*mat.VecDense, float64) {
	cum := mat.NewVecDense(weights.Len(), nil)
	loss := g.ComputeInto(x, label, weights, cum)
	return cum, loss
}

func checkBuffer(op string, weights, cumGradient *mat.VecDense) {
	if cumGradient.Len() != weights.Len() {
		panic(errors.NewDimensionError(op, weights.Len(), cumGradient.Len(), 1))
	}
}

// LeastSquaresGradient is the gradient of (w·x - y)².
type LeastSquaresGradient struct{}

// Compute implements Gradient.
func (g LeastSquaresGradient) Compute(x linalg.Vector, label float64, weights *mat.VecDense) (*mat.VecDense, float64) {
	return computeNew(g, x, label, weights)
}

// ComputeInto implements Gradient.
func (LeastSquaresGradient) ComputeInto(x linalg.Vector, label float64, weights, cumGradient *mat.VecDense) float64 {
	checkBuffer("LeastSquaresGradient.ComputeInto", weights, cumGradient)
	diff := linalg.Dot(x, weights) - label
	linalg.Axpy(2.0*diff, x, cumGradient)
	return diff * diff
}

// HingeGradient is the subgradient of the hinge loss for labels in {0, 1}.
// A scaled margin of exactly 1 falls in the zero-loss branch.
type HingeGradient struct{}

// Compute implements Gradient.
func (g HingeGradient) Compute(x linalg.Vector, label float64, weights *mat.VecDense) (*mat.VecDense, float64) {
	return computeNew(g, x, label, weights)
}

// ComputeInto implements Gradient.
func (HingeGradient) ComputeInto(x linalg.Vector, label float64, weights, cumGradient *mat.VecDense) float64 {
	checkBuffer("HingeGradient.ComputeInto", weights, cumGradient)
	labelScaled := 2*label - 1.0
	dotProduct := linalg.Dot(x, weights)
	if labelScaled*dotProduct < 1.0 {
		linalg.Axpy(-labelScaled, x, cumGradient)
		return 1.0 - labelScaled*dotProduct
	}
	return 0
}
