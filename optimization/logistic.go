package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

// maxStackMargins is the number of non-pivot classes whose margins fit in a
// fixed-size array, keeping ComputeInto allocation free.
const maxStackMargins = 16

// Class identifies the true class of an example in the pivot encoding of a
// K-class model: class 0 is the pivot with implicit all-zero coefficients and
// class c > 0 owns the weight block starting at (c-1)·d.
type Class interface {
	isClass()
}

// PivotClass is class 0. It has no stored coefficients.
type PivotClass struct{}

// NonPivotClass is a class with a stored coefficient block.
type NonPivotClass struct {
	// Index of the block, equal to the class label minus one.
	Index int
	// Offset of the block in the flattened weight vector.
	Offset int
}

func (PivotClass) isClass()    {}
func (NonPivotClass) isClass() {}

// ClassOf maps a label to its class in a numClasses model over d features.
// The label is rounded to the nearest integer. It panics with a ValueError
// when the rounded label is outside [0, numClasses).
func ClassOf(label float64, numClasses, d int) Class {
	c := math.Round(label)
	if math.IsNaN(c) || c < 0 || c >= float64(numClasses) {
		panic(errors.NewValueError("LogisticGradient",
			fmt.Sprintf("label %v out of range [0, %d)", label, numClasses)))
	}
	if c == 0 {
		return PivotClass{}
	}
	idx := int(c) - 1
	return NonPivotClass{Index: idx, Offset: idx * d}
}

// LogisticGradient is the gradient of the negative log-likelihood of a
// K-class softmax model with class 0 as pivot. K = 2 is binary logistic
// regression. Weights hold K-1 blocks of length d = x.Len().
type LogisticGradient struct {
	numClasses int
}

// NewLogisticGradient returns a LogisticGradient that additionally asserts
// the weight vector encodes exactly numClasses classes.
func NewLogisticGradient(numClasses int) (LogisticGradient, error) {
	if numClasses < 2 {
		return LogisticGradient{}, errors.NewValidationError("numClasses", "must be at least 2", numClasses)
	}
	return LogisticGradient{numClasses: numClasses}, nil
}

// NumClasses returns the asserted class count, or 0 when inferred from the weights.
func (g LogisticGradient) NumClasses() int { return g.numClasses }

// classes returns K for the given shapes.
func (g LogisticGradient) classes(x linalg.Vector, weights *mat.VecDense) int {
	d := x.Len()
	if weights.Len()%d != 0 {
		panic(errors.NewDimensionError("LogisticGradient.ComputeInto", (weights.Len()/d+1)*d, weights.Len(), 1))
	}
	k := weights.Len()/d + 1
	if g.numClasses != 0 && k != g.numClasses {
		panic(errors.NewDimensionError("LogisticGradient.ComputeInto", (g.numClasses-1)*d, weights.Len(), 1))
	}
	return k
}

// Compute implements Gradient. For K > 2 it delegates to ComputeInto with a
// fresh zero buffer spanning all K-1 blocks.
func (g LogisticGradient) Compute(x linalg.Vector, label float64, weights *mat.VecDense) (*mat.VecDense, float64) {
	return computeNew(g, x, label, weights)
}

// ComputeInto implements Gradient.
//
// For each non-pivot block i the margin m_i = w_i·x is taken over active
// entries of x. The block gradient is (p_i - [class == i+1])·x where
// p_i = exp(m_i) / (1 + Σ exp(m_j)). When the largest margin is positive all
// exponents are shifted by it; the pivot term 1 becomes exp(-max).
func (g LogisticGradient) ComputeInto(x linalg.Vector, label float64, weights, cumGradient *mat.VecDense) float64 {
	checkBuffer("LogisticGradient.ComputeInto", weights, cumGradient)
	k := g.classes(x, weights)
	d := x.Len()
	class := ClassOf(label, k, d)

	// logits[0] is the pivot margin, always 0
	var stack [maxStackMargins + 1]float64
	var logits []float64
	if k <= maxStackMargins+1 {
		logits = stack[:k]
	} else {
		logits = make([]float64, k)
	}
	margins := logits[1:]

	maxMargin := math.Inf(-1)
	for i := range margins {
		margins[i] = linalg.DotAt(x, weights, i*d)
		if margins[i] > maxMargin {
			maxMargin = margins[i]
		}
	}

	shift := 0.0
	if maxMargin > 0 {
		shift = maxMargin
	}

	trueMargin := 0.0
	truth, isNonPivot := class.(NonPivotClass)
	if isNonPivot {
		trueMargin = margins[truth.Index]
	}

	// -log(exp(m_c) / (1 + Σ exp(m_j))) with m_0 = 0 for the pivot
	loss := errors.LogSumExp(logits) - trueMargin

	// margins now hold the shifted numerators exp(m_i - shift)
	sum := 0.0
	for i, m := range margins {
		margins[i] = math.Exp(m - shift)
		sum += margins[i]
	}
	denominator := math.Exp(-shift) + sum

	for i, numerator := range margins {
		multiplier := numerator / denominator
		if isNonPivot && i == truth.Index {
			multiplier -= 1.0
		}
		linalg.AxpyAt(multiplier, x, cumGradient, i*d)
	}
	return loss
}
