package linear

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/core/model"
	"github.com/YuminosukeSato/optml/core/parallel"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

// parallelThreshold is the batch size below which PredictBatch stays sequential.
const parallelThreshold = 1000

// Model is a trained generalized linear model.
type Model struct {
	*model.StateManager

	name        string
	kind        Kind
	weights     *mat.VecDense
	intercept   float64
	numClasses  int
	numFeatures int
	// bias reports whether multinomial weight blocks end with an intercept entry.
	bias        bool
	threshold   *float64
	lossHistory []float64
}

var (
	_ model.Predictor       = (*Model)(nil)
	_ model.WeightsExporter = (*Model)(nil)
)

// Weights returns a copy of the learned coefficients. Multinomial models
// return the K-1 concatenated class blocks.
func (m *Model) Weights() []float64 {
	if m.weights == nil {
		return nil
	}
	return linalg.ToSlice(m.weights)
}

// Intercept returns the learned intercept of a binary or regression model.
func (m *Model) Intercept() float64 { return m.intercept }

// NumClasses returns the number of classes, 2 for binary and regression models.
func (m *Model) NumClasses() int { return m.numClasses }

// NumFeatures returns the input dimension.
func (m *Model) NumFeatures() int { return m.numFeatures }

// LossHistory returns the training loss of every iteration.
func (m *Model) LossHistory() []float64 { return m.lossHistory }

// SetThreshold sets the decision threshold of a binary classifier. Scores
// above the threshold predict 1.
func (m *Model) SetThreshold(t float64) *Model {
	m.threshold = &t
	return m
}

// ClearThreshold makes a binary classifier return raw scores: probabilities
// for logistic regression and margins for SVMs.
func (m *Model) ClearThreshold() *Model {
	m.threshold = nil
	return m
}

// Threshold returns the decision threshold, if one is set.
func (m *Model) Threshold() (float64, bool) {
	if m.threshold == nil {
		return 0, false
	}
	return *m.threshold, true
}

func (m *Model) multinomial() bool {
	return m.kind == Logistic && m.numClasses > 2
}

// Predict scores a single feature vector.
func (m *Model) Predict(x linalg.Vector) (float64, error) {
	if err := m.RequireFitted("Predict"); err != nil {
		return 0, err
	}
	if x.Len() != m.numFeatures {
		return 0, errors.NewDimensionError(m.name+".Predict", m.numFeatures, x.Len(), 1)
	}
	return m.predict(x), nil
}

// PredictBatch scores every vector of xs, in parallel for large batches.
func (m *Model) PredictBatch(xs []linalg.Vector) ([]float64, error) {
	if err := m.RequireFitted("PredictBatch"); err != nil {
		return nil, err
	}
	for i, x := range xs {
		if x.Len() != m.numFeatures {
			return nil, errors.Wrapf(errors.NewDimensionError(m.name+".PredictBatch", m.numFeatures, x.Len(), 1), "row %d", i)
		}
	}

	out := make([]float64, len(xs))
	parallel.ParallelizeWithThreshold(len(xs), parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			out[i] = m.predict(xs[i])
		}
	})
	return out, nil
}

func (m *Model) predict(x linalg.Vector) float64 {
	if m.multinomial() {
		return m.predictClass(x)
	}

	margin := linalg.Dot(x, m.weights) + m.intercept
	switch m.kind {
	case Logistic:
		score := errors.StableSigmoid(margin)
		if m.threshold == nil {
			return score
		}
		return indicator(score > *m.threshold)
	case SVM:
		if m.threshold == nil {
			return margin
		}
		return indicator(margin > *m.threshold)
	}
	return margin
}

// predictClass returns the class with the largest margin, the pivot class 0
// having margin 0. Ties keep the lower class.
func (m *Model) predictClass(x linalg.Vector) float64 {
	if m.bias {
		x = linalg.AppendBias(x)
	}
	dim := x.Len()
	best, bestMargin := 0, 0.0
	for i := 0; i < m.numClasses-1; i++ {
		margin := linalg.DotAt(x, m.weights, i*dim)
		if margin > bestMargin {
			best, bestMargin = i+1, margin
		}
	}
	return float64(best)
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ExportWeights snapshots the trained model.
func (m *Model) ExportWeights() (*model.ModelWeights, error) {
	if err := m.RequireFitted("ExportWeights"); err != nil {
		return nil, err
	}
	mw := &model.ModelWeights{
		ModelType:    m.name,
		Version:      model.WeightsVersion,
		Coefficients: m.Weights(),
		Intercept:    m.intercept,
		NumClasses:   m.numClasses,
		State:        m.State(),
	}
	if m.threshold != nil {
		t := *m.threshold
		mw.Threshold = &t
	}
	return mw, nil
}

// ImportWeights replaces the model parameters with mw.
func (m *Model) ImportWeights(mw *model.ModelWeights) error {
	if err := mw.Validate(); err != nil {
		return err
	}
	kind, ok := kindOf(mw.ModelType)
	if !ok {
		return errors.NewValidationError("model_type", "unknown linear model", mw.ModelType)
	}
	if !mw.State.Fitted {
		return errors.NewValidationError("state", "weights of an untrained model", mw.State)
	}

	d := mw.State.NFeatures
	numClasses := max(mw.NumClasses, 2)
	bias := false
	if kind == Logistic && numClasses > 2 {
		switch len(mw.Coefficients) {
		case (numClasses - 1) * d:
		case (numClasses - 1) * (d + 1):
			bias = true
		default:
			return errors.NewDimensionError("ImportWeights", (numClasses-1)*d, len(mw.Coefficients), 1)
		}
	} else if len(mw.Coefficients) != d {
		return errors.NewDimensionError("ImportWeights", d, len(mw.Coefficients), 1)
	}

	if m.StateManager == nil {
		m.StateManager = model.NewStateManager(mw.ModelType)
	}
	m.name = mw.ModelType
	m.kind = kind
	m.weights = mat.NewVecDense(len(mw.Coefficients), append([]float64(nil), mw.Coefficients...))
	m.intercept = mw.Intercept
	m.numClasses = numClasses
	m.numFeatures = d
	m.bias = bias
	m.threshold = nil
	if mw.Threshold != nil {
		m.SetThreshold(*mw.Threshold)
	}
	m.lossHistory = nil
	m.SetState(mw.State)
	return nil
}

// LoadModel builds a Model from exported weights.
func LoadModel(mw *model.ModelWeights) (*Model, error) {
	m := &Model{StateManager: model.NewStateManager(mw.ModelType)}
	if err := m.ImportWeights(mw); err != nil {
		return nil, err
	}
	return m, nil
}

func kindOf(modelType string) (Kind, bool) {
	switch modelType {
	case "LinearRegressionWithSGD":
		return Regression, true
	case "LogisticRegressionWithSGD", "LogisticRegressionWithLBFGS":
		return Logistic, true
	case "SVMWithSGD":
		return SVM, true
	}
	return 0, false
}
