package optimization

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Updater applies one optimization step.
//
// Compute returns the new weights and the regularization value at the new
// weights. It never modifies weightsOld or gradient. iter starts at 1.
type Updater interface {
	Compute(weightsOld, gradient *mat.VecDense, stepSize float64, iter int, regParam float64) (*mat.VecDense, float64)
}

// SimpleUpdater takes a plain gradient step with step size stepSize/sqrt(iter).
type SimpleUpdater struct{}

func (SimpleUpdater) Compute(weightsOld, gradient *mat.VecDense, stepSize float64, iter int, _ float64) (*mat.VecDense, float64) {
	thisIterStepSize := stepSize / math.Sqrt(float64(iter))
	w := mat.VecDenseCopyOf(weightsOld)
	w.AddScaledVec(w, -thisIterStepSize, gradient)
	return w, 0
}

// ConstantUpdater takes a plain gradient step with a fixed step size.
type ConstantUpdater struct{}

func (ConstantUpdater) Compute(weightsOld, gradient *mat.VecDense, stepSize float64, _ int, _ float64) (*mat.VecDense, float64) {
	w := mat.VecDenseCopyOf(weightsOld)
	w.AddScaledVec(w, -stepSize, gradient)
	return w, 0
}

// L1Updater adds L1 regularization through soft thresholding after the
// gradient step. The regularization value is regParam·||w||₁.
type L1Updater struct{}

func (L1Updater) Compute(weightsOld, gradient *mat.VecDense, stepSize float64, iter int, regParam float64) (*mat.VecDense, float64) {
	thisIterStepSize := stepSize / math.Sqrt(float64(iter))
	w := mat.VecDenseCopyOf(weightsOld)
	w.AddScaledVec(w, -thisIterStepSize, gradient)

	shrinkage := regParam * thisIterStepSize
	raw := w.RawVector().Data
	for i, wi := range raw {
		raw[i] = math.Copysign(math.Max(0, math.Abs(wi)-shrinkage), wi)
	}
	return w, regParam * floats.Norm(raw, 1)
}

// SquaredL2Updater adds L2 regularization ½·regParam·||w||² as weight decay.
type SquaredL2Updater struct{}

func (SquaredL2Updater) Compute(weightsOld, gradient *mat.VecDense, stepSize float64, iter int, regParam float64) (*mat.VecDense, float64) {
	thisIterStepSize := stepSize / math.Sqrt(float64(iter))
	w := mat.NewVecDense(weightsOld.Len(), nil)
	w.ScaleVec(1.0-thisIterStepSize*regParam, weightsOld)
	w.AddScaledVec(w, -thisIterStepSize, gradient)
	norm := floats.Norm(w.RawVector().Data, 2)
	return w, 0.5 * regParam * norm * norm
}

// UpdaterByName resolves "simple", "constant", "l1" or "l2".
func UpdaterByName(name string) (Updater, bool) {
	switch name {
	case "simple", "":
		return SimpleUpdater{}, true
	case "constant":
		return ConstantUpdater{}, true
	case "l1":
		return L1Updater{}, true
	case "l2", "squaredl2":
		return SquaredL2Updater{}, true
	}
	return nil, false
}
