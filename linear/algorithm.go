// Package linear trains generalized linear models (linear regression, logistic
// regression and linear SVMs) with the optimizers of package optimization.
package linear

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/core/model"
	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/optimization"
	"github.com/YuminosukeSato/optml/pkg/errors"
	"github.com/YuminosukeSato/optml/pkg/log"
	"github.com/YuminosukeSato/optml/preprocessing"
)

// Kind is the family of a generalized linear model.
type Kind int

const (
	// Regression predicts w·x + b.
	Regression Kind = iota
	// Logistic predicts class probabilities through the logistic function.
	Logistic
	// SVM predicts the sign of the margin.
	SVM
)

func (k Kind) String() string {
	switch k {
	case Regression:
		return "regression"
	case Logistic:
		return "logistic"
	case SVM:
		return "svm"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Algorithm trains a generalized linear model.
type Algorithm struct {
	name      string
	kind      Kind
	cfg       config
	gradient  optimization.Gradient
	optimizer optimization.Optimizer
	logger    log.Logger
}

// NewLogisticRegressionWithSGD trains a logistic regression with mini-batch
// gradient descent. The default updater is SimpleUpdater.
func NewLogisticRegressionWithSGD(opts ...Option) (*Algorithm, error) {
	return newSGDAlgorithm("LogisticRegressionWithSGD", Logistic, optimization.SimpleUpdater{}, opts)
}

// NewLinearRegressionWithSGD trains a least squares regression with mini-batch
// gradient descent. The default updater is SimpleUpdater.
func NewLinearRegressionWithSGD(opts ...Option) (*Algorithm, error) {
	return newSGDAlgorithm("LinearRegressionWithSGD", Regression, optimization.SimpleUpdater{}, opts)
}

// NewSVMWithSGD trains a linear SVM on the hinge loss with mini-batch gradient
// descent. The default updater is SquaredL2Updater.
func NewSVMWithSGD(opts ...Option) (*Algorithm, error) {
	return newSGDAlgorithm("SVMWithSGD", SVM, optimization.SquaredL2Updater{}, opts)
}

// NewLogisticRegressionWithLBFGS trains a logistic regression with L-BFGS.
// Regularization is squared L2 with the optimizer's RegParam; WithUpdater is ignored.
func NewLogisticRegressionWithLBFGS(opts ...Option) (*Algorithm, error) {
	a, err := newAlgorithm("LogisticRegressionWithLBFGS", Logistic, opts)
	if err != nil {
		return nil, err
	}
	a.optimizer, err = optimization.NewLBFGS(a.gradient, a.cfg.optimizerOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newSGDAlgorithm(name string, kind Kind, updater optimization.Updater, opts []Option) (*Algorithm, error) {
	a, err := newAlgorithm(name, kind, opts)
	if err != nil {
		return nil, err
	}
	if a.cfg.updater != nil {
		updater = a.cfg.updater
	}
	a.optimizer, err = optimization.NewGradientDescent(a.gradient, updater, a.cfg.optimizerOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newAlgorithm(name string, kind Kind, opts []Option) (*Algorithm, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = log.GetLoggerWithName("linear")
	} else {
		cfg.optimizerOpts = append(cfg.optimizerOpts, optimization.WithLogger(cfg.logger))
	}

	a := &Algorithm{name: name, kind: kind, cfg: cfg, logger: cfg.logger.With(log.ModelNameKey, name)}
	switch kind {
	case Logistic:
		g, err := optimization.NewLogisticGradient(cfg.numClasses)
		if err != nil {
			return nil, err
		}
		a.gradient = g
	case SVM:
		a.gradient = optimization.HingeGradient{}
	default:
		a.gradient = optimization.LeastSquaresGradient{}
	}
	if kind != Logistic && cfg.numClasses != 2 {
		return nil, errors.NewValidationError("numClasses", fmt.Sprintf("%s supports binary labels only", name), cfg.numClasses)
	}
	return a, nil
}

// Name returns the algorithm name used in logs and exported weights.
func (a *Algorithm) Name() string { return a.name }

// Kind returns the model family.
func (a *Algorithm) Kind() Kind { return a.kind }

// Optimizer returns the optimizer driving training.
func (a *Algorithm) Optimizer() optimization.Optimizer { return a.optimizer }

func (a *Algorithm) multinomial() bool {
	return a.kind == Logistic && a.cfg.numClasses > 2
}

// validateLabels checks labels against the model family: {0, 1} for binary
// classifiers, integers in [0, K) for multinomial logistic regression.
func (a *Algorithm) validateLabels(data dataset.Partitioned) error {
	if a.kind == Regression {
		return nil
	}
	k := float64(a.cfg.numClasses)
	for p, part := range data {
		for i, pt := range part {
			label := pt.Label
			if label < 0 || label >= k || label != math.Trunc(label) {
				return errors.NewValueError(a.name+".Run",
					fmt.Sprintf("partition %d point %d: label %v is not a class in [0, %d)", p, i, label, a.cfg.numClasses))
			}
		}
	}
	return nil
}

// Run trains a model on data. initialWeights may be nil for all-zero weights.
//
// For binary and regression models initialWeights has one entry per feature;
// the intercept starts at zero. For multinomial models it holds K-1 blocks,
// each one feature wider when the intercept is enabled.
func (a *Algorithm) Run(ctx context.Context, data dataset.Partitioned, initialWeights *mat.VecDense) (*Model, error) {
	op := a.name + ".Run"
	n := data.NumPoints()
	if n == 0 {
		return nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if a.cfg.validateData {
		if err := a.validateLabels(data); err != nil {
			return nil, err
		}
	}

	d := data.NumFeatures()
	if d == 0 {
		return nil, errors.NewValidationError("features", "points must have at least one feature", d)
	}
	blockDim := d
	train := data
	var scale []float64
	if a.cfg.scaleFeatures {
		scaler := preprocessing.NewStandardScaler(false, true)
		if err := scaler.Fit(data); err != nil {
			return nil, errors.Wrapf(err, "%s", op)
		}
		scaled, err := scaler.TransformData(data)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", op)
		}
		train, scale = scaled, scaler.Scale
	}
	if a.cfg.intercept {
		blockDim++
		train = train.Map(func(pt dataset.LabeledPoint) dataset.LabeledPoint {
			return dataset.LabeledPoint{Label: pt.Label, Features: linalg.AppendBias(pt.Features)}
		})
	}

	w0, err := a.initialWeights(d, blockDim, initialWeights)
	if err != nil {
		return nil, err
	}
	if scale != nil {
		rescale(w0, scale, blockDim, true)
	}

	a.logger.Info("Training started",
		log.OperationKey, log.OperationTrain,
		log.SamplesKey, n,
		log.FeaturesKey, d,
		log.ClassesKey, a.cfg.numClasses,
		log.PartitionsKey, len(data),
	)
	start := time.Now()

	weights, history, err := a.optimizer.Optimize(ctx, train, w0)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", op)
	}
	if scale != nil {
		rescale(weights, scale, blockDim, false)
	}

	m := &Model{
		StateManager: model.NewStateManager(a.name),
		name:         a.name,
		kind:         a.kind,
		numClasses:   a.cfg.numClasses,
		numFeatures:  d,
		lossHistory:  history,
	}
	switch {
	case a.multinomial():
		m.weights = weights
		m.bias = a.cfg.intercept
	case a.cfg.intercept:
		m.weights = mat.VecDenseCopyOf(weights.SliceVec(0, d))
		m.intercept = weights.AtVec(d)
	default:
		m.weights = weights
	}
	switch a.kind {
	case Logistic:
		m.SetThreshold(0.5)
	case SVM:
		m.SetThreshold(0.0)
	}
	m.SetFitted(d, n)

	a.logger.Info("Training finished",
		log.OperationKey, log.OperationTrain,
		log.IterationKey, len(history),
		log.LossKey, lastLoss(history),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return m, nil
}

func (a *Algorithm) initialWeights(d, blockDim int, initial *mat.VecDense) (*mat.VecDense, error) {
	op := a.name + ".Run"
	if a.multinomial() {
		size := (a.cfg.numClasses - 1) * blockDim
		if initial == nil {
			return mat.NewVecDense(size, nil), nil
		}
		if initial.Len() != size {
			return nil, errors.NewDimensionError(op, size, initial.Len(), 1)
		}
		return mat.VecDenseCopyOf(initial), nil
	}

	w := mat.NewVecDense(blockDim, nil)
	if initial == nil {
		return w, nil
	}
	if initial.Len() != d {
		return nil, errors.NewDimensionError(op, d, initial.Len(), 1)
	}
	w.SliceVec(0, d).(*mat.VecDense).CopyVec(initial)
	return w, nil
}

// rescale maps per-feature weights between the original and the scaled
// feature space, block by block. The intercept entry of a block is untouched.
func rescale(w *mat.VecDense, scale []float64, blockDim int, toScaled bool) {
	for off := 0; off+blockDim <= w.Len(); off += blockDim {
		for j, s := range scale {
			if toScaled {
				w.SetVec(off+j, w.AtVec(off+j)*s)
			} else {
				w.SetVec(off+j, w.AtVec(off+j)/s)
			}
		}
	}
}

func lastLoss(history []float64) float64 {
	if len(history) == 0 {
		return math.NaN()
	}
	return history[len(history)-1]
}
