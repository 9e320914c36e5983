package linear

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/core/model"
	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/optimization"
	"github.com/YuminosukeSato/optml/pkg/errors"
	"github.com/YuminosukeSato/optml/pkg/log"
	"github.com/YuminosukeSato/optml/preprocessing"
)

func silentLogger() log.Logger {
	l, _ := log.NewTestLogger(log.LevelError)
	return l
}

func partitioned(t *testing.T, points []dataset.LabeledPoint, n int) dataset.Partitioned {
	t.Helper()
	parts, err := dataset.Partition(points, n)
	require.NoError(t, err)
	return parts
}

func accuracy(t *testing.T, m *Model, points []dataset.LabeledPoint) float64 {
	t.Helper()
	xs := make([]linalg.Vector, len(points))
	for i, p := range points {
		xs[i] = p.Features
	}
	preds, err := m.PredictBatch(xs)
	require.NoError(t, err)
	correct := 0
	for i, p := range points {
		if preds[i] == p.Label {
			correct++
		}
	}
	return float64(correct) / float64(len(points))
}

func TestLogisticRegressionWithSGD_Calibration(t *testing.T) {
	const offset, scale = 2.0, -1.5
	data := partitioned(t, dataset.GenerateLogisticInput(offset, scale, 10000, 42), 4)

	alg, err := NewLogisticRegressionWithSGD(
		WithIntercept(true),
		WithLogger(silentLogger()),
		WithOptimizerOptions(optimization.WithStepSize(10.0), optimization.WithNumIterations(100)),
	)
	require.NoError(t, err)

	m, err := alg.Run(context.Background(), data, nil)
	require.NoError(t, err)

	require.Len(t, m.Weights(), 1)
	assert.InDelta(t, scale, m.Weights()[0], 0.2)
	assert.InDelta(t, offset, m.Intercept(), 0.2)
	assert.NotEmpty(t, m.LossHistory())

	validation := dataset.GenerateLogisticInput(offset, scale, 50000, 17)
	assert.GreaterOrEqual(t, accuracy(t, m, validation), 0.83)
}

func TestLogisticRegressionWithSGD_Multinomial(t *testing.T) {
	centers := [][]float64{{-2, -2}, {2, -2}, {0, 2.5}}
	points := dataset.GenerateMultinomialInput(centers, 0.7, 300, 5)

	alg, err := NewLogisticRegressionWithSGD(
		WithNumClasses(3),
		WithIntercept(true),
		WithLogger(silentLogger()),
		WithOptimizerOptions(optimization.WithNumIterations(100), optimization.WithConvergenceTol(0)),
	)
	require.NoError(t, err)

	m, err := alg.Run(context.Background(), partitioned(t, points, 3), nil)
	require.NoError(t, err)
	assert.Len(t, m.Weights(), 2*3)
	assert.Equal(t, 3, m.NumClasses())
	assert.GreaterOrEqual(t, accuracy(t, m, points), 0.95)
}

func TestLogisticRegressionWithLBFGS(t *testing.T) {
	const offset, scale = 2.0, -1.5
	data := partitioned(t, dataset.GenerateLogisticInput(offset, scale, 5000, 11), 3)

	alg, err := NewLogisticRegressionWithLBFGS(
		WithIntercept(true),
		WithLogger(silentLogger()),
		WithOptimizerOptions(optimization.WithNumIterations(100)),
	)
	require.NoError(t, err)

	m, err := alg.Run(context.Background(), data, nil)
	require.NoError(t, err)
	assert.InDelta(t, scale, m.Weights()[0], 0.25)
	assert.InDelta(t, offset, m.Intercept(), 0.25)
}

func TestLinearRegressionWithSGD(t *testing.T) {
	points := dataset.GenerateLinearInput(0.5, []float64{1.5, -2}, 500, 0, 3)

	alg, err := NewLinearRegressionWithSGD(
		WithIntercept(true),
		WithUpdater(optimization.ConstantUpdater{}),
		WithLogger(silentLogger()),
		WithOptimizerOptions(
			optimization.WithStepSize(0.3),
			optimization.WithNumIterations(500),
			optimization.WithConvergenceTol(0),
		),
	)
	require.NoError(t, err)

	m, err := alg.Run(context.Background(), partitioned(t, points, 4), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1.5, -2}, m.Weights(), 1e-3)
	assert.InDelta(t, 0.5, m.Intercept(), 1e-3)

	_, ok := m.Threshold()
	assert.False(t, ok)
	got, err := m.Predict(linalg.NewDense([]float64{1, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-2)
}

func TestLinearRegressionWithSGD_FeatureScaling(t *testing.T) {
	points := dataset.GenerateLinearInput(0.5, []float64{1.5, -2}, 500, 0, 3)
	for i, pt := range points {
		x := linalg.ToSlice(pt.Features)
		x[0] *= 100
		points[i] = dataset.NewLabeledPoint(pt.Label, x...)
	}

	alg, err := NewLinearRegressionWithSGD(
		WithIntercept(true),
		WithFeatureScaling(true),
		WithUpdater(optimization.ConstantUpdater{}),
		WithLogger(silentLogger()),
		WithOptimizerOptions(
			optimization.WithStepSize(0.3),
			optimization.WithNumIterations(500),
			optimization.WithConvergenceTol(0),
		),
	)
	require.NoError(t, err)

	m, err := alg.Run(context.Background(), partitioned(t, points, 4), nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.015, m.Weights()[0], 1e-4)
	assert.InDelta(t, -2.0, m.Weights()[1], 1e-3)
	assert.InDelta(t, 0.5, m.Intercept(), 1e-3)

	got, err := m.Predict(linalg.NewDense([]float64{100, 1}))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got, 1e-2)
}

func TestRun_FeatureScalingMatchesPrescaledData(t *testing.T) {
	points := dataset.GenerateLogisticInput(2.0, -1.5, 2000, 9)
	for i, pt := range points {
		points[i] = dataset.NewLabeledPoint(pt.Label, 50*pt.Features.AtVec(0))
	}
	data := partitioned(t, points, 4)

	scaler := preprocessing.NewStandardScaler(false, true)
	require.NoError(t, scaler.Fit(data))
	prescaled, err := scaler.TransformData(data)
	require.NoError(t, err)

	opts := func(scale bool) []Option {
		return []Option{
			WithIntercept(true),
			WithFeatureScaling(scale),
			WithLogger(silentLogger()),
			WithOptimizerOptions(optimization.WithStepSize(10), optimization.WithNumIterations(50)),
		}
	}
	plain, err := NewLogisticRegressionWithSGD(opts(false)...)
	require.NoError(t, err)
	want, err := plain.Run(context.Background(), prescaled, nil)
	require.NoError(t, err)

	scaled, err := NewLogisticRegressionWithSGD(opts(true)...)
	require.NoError(t, err)
	got, err := scaled.Run(context.Background(), data, nil)
	require.NoError(t, err)

	assert.InDelta(t, want.Weights()[0]/scaler.Scale[0], got.Weights()[0], 1e-9)
	assert.InDelta(t, want.Intercept(), got.Intercept(), 1e-9)
	assert.InDeltaSlice(t, want.LossHistory(), got.LossHistory(), 1e-9)
}

func TestLogisticRegressionWithSGD_MultinomialFeatureScaling(t *testing.T) {
	centers := [][]float64{{-2, -2}, {2, -2}, {0, 2.5}}
	points := dataset.GenerateMultinomialInput(centers, 0.7, 300, 5)
	for i, pt := range points {
		x := linalg.ToSlice(pt.Features)
		x[1] *= 100
		points[i] = dataset.NewLabeledPoint(pt.Label, x...)
	}

	alg, err := NewLogisticRegressionWithSGD(
		WithNumClasses(3),
		WithIntercept(true),
		WithFeatureScaling(true),
		WithLogger(silentLogger()),
		WithOptimizerOptions(optimization.WithNumIterations(100), optimization.WithConvergenceTol(0)),
	)
	require.NoError(t, err)

	m, err := alg.Run(context.Background(), partitioned(t, points, 3), nil)
	require.NoError(t, err)
	require.Len(t, m.Weights(), 2*3)
	for _, w := range m.Weights() {
		assert.False(t, math.IsNaN(w) || math.IsInf(w, 0))
	}
	assert.GreaterOrEqual(t, accuracy(t, m, points), 0.9)
}

func TestRescale(t *testing.T) {
	w := mat.NewVecDense(6, []float64{1, 2, 9, 3, 4, 9})
	rescale(w, []float64{2, 4}, 3, true)
	assert.Equal(t, []float64{2, 8, 9, 6, 16, 9}, w.RawVector().Data)
	rescale(w, []float64{2, 4}, 3, false)
	assert.Equal(t, []float64{1, 2, 9, 3, 4, 9}, w.RawVector().Data)
}

func separable() []dataset.LabeledPoint {
	var points []dataset.LabeledPoint
	for _, x := range []float64{1, 2, 3} {
		points = append(points, dataset.NewLabeledPoint(1, x), dataset.NewLabeledPoint(0, -x))
	}
	return points
}

func TestSVMWithSGD(t *testing.T) {
	alg, err := NewSVMWithSGD(WithLogger(silentLogger()))
	require.NoError(t, err)

	m, err := alg.Run(context.Background(), partitioned(t, separable(), 2), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2}, m.Weights(), 1e-12)
	assert.Equal(t, 1.0, accuracy(t, m, separable()))

	m.ClearThreshold()
	margin, err := m.Predict(linalg.NewDense([]float64{0.5}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, margin, 1e-12)
}

func TestRun_InitialWeights(t *testing.T) {
	alg, err := NewSVMWithSGD(WithLogger(silentLogger()), WithIntercept(true))
	require.NoError(t, err)

	_, err = alg.Run(context.Background(), partitioned(t, separable(), 1), mat.NewVecDense(2, nil))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de), "got %v", err)
	assert.Equal(t, 1, de.Expected)
	assert.Equal(t, 2, de.Got)

	// Already separating with margin: no updates move the weights.
	m, err := alg.Run(context.Background(), partitioned(t, separable(), 1), mat.NewVecDense(1, []float64{5}))
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, m.Weights())
	assert.Equal(t, 0.0, m.Intercept())
}

func TestRun_LabelValidation(t *testing.T) {
	tests := []struct {
		name       string
		numClasses int
		label      float64
	}{
		{"binary label 2", 2, 2},
		{"negative label", 2, -1},
		{"fractional label", 3, 0.5},
		{"label equal to class count", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alg, err := NewLogisticRegressionWithSGD(WithNumClasses(tt.numClasses), WithLogger(silentLogger()))
			require.NoError(t, err)
			points := append(separable(), dataset.NewLabeledPoint(tt.label, 1))
			_, err = alg.Run(context.Background(), partitioned(t, points, 2), nil)
			var ve *errors.ValueError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, "LogisticRegressionWithSGD.Run", ve.Op)
		})
	}
}

func TestRun_RegressionAcceptsAnyLabel(t *testing.T) {
	alg, err := NewLinearRegressionWithSGD(WithLogger(silentLogger()),
		WithOptimizerOptions(optimization.WithNumIterations(5)))
	require.NoError(t, err)
	points := []dataset.LabeledPoint{dataset.NewLabeledPoint(-3.7, 1), dataset.NewLabeledPoint(12.25, 2)}
	_, err = alg.Run(context.Background(), partitioned(t, points, 1), nil)
	assert.NoError(t, err)
}

func TestConstructors_InvalidOptions(t *testing.T) {
	_, err := NewSVMWithSGD(WithNumClasses(3))
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "numClasses", ve.ParamName)

	_, err = NewLogisticRegressionWithSGD(WithNumClasses(1))
	assert.True(t, errors.As(err, &ve))

	_, err = NewLinearRegressionWithSGD(WithOptimizerOptions(optimization.WithMiniBatchFraction(0)))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "miniBatchFraction", ve.ParamName)
}

func TestRun_EmptyData(t *testing.T) {
	alg, err := NewLinearRegressionWithSGD(WithLogger(silentLogger()))
	require.NoError(t, err)
	_, err = alg.Run(context.Background(), dataset.Partitioned{}, nil)
	assert.True(t, errors.Is(err, errors.ErrEmptyData))
}

func TestModel_NotFitted(t *testing.T) {
	m := &Model{StateManager: model.NewStateManager("LogisticRegressionWithSGD")}

	_, err := m.Predict(linalg.NewDense([]float64{1}))
	var nf *errors.NotFittedError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "Predict", nf.Method)

	_, err = m.ExportWeights()
	assert.True(t, errors.As(err, &nf))
}

func trainedLogistic(t *testing.T) *Model {
	t.Helper()
	alg, err := NewLogisticRegressionWithSGD(WithIntercept(true), WithLogger(silentLogger()),
		WithOptimizerOptions(optimization.WithStepSize(10), optimization.WithNumIterations(50)))
	require.NoError(t, err)
	m, err := alg.Run(context.Background(), partitioned(t, dataset.GenerateLogisticInput(2, -1.5, 1000, 1), 2), nil)
	require.NoError(t, err)
	return m
}

func TestModel_Threshold(t *testing.T) {
	m := trainedLogistic(t)
	x := linalg.NewDense([]float64{0.3})

	label, err := m.Predict(x)
	require.NoError(t, err)
	assert.Contains(t, []float64{0, 1}, label)

	m.ClearThreshold()
	score, err := m.Predict(x)
	require.NoError(t, err)
	assert.Greater(t, score, 0.0)
	assert.Less(t, score, 1.0)

	m.SetThreshold(score - 1e-9)
	label, err = m.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 1.0, label)

	m.SetThreshold(score + 1e-9)
	label, err = m.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, 0.0, label)
}

func TestModel_PredictDimensionMismatch(t *testing.T) {
	m := trainedLogistic(t)

	_, err := m.Predict(linalg.NewDense([]float64{1, 2}))
	var de *errors.DimensionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Expected)
	assert.Equal(t, 2, de.Got)

	_, err = m.PredictBatch([]linalg.Vector{linalg.NewDense([]float64{1}), linalg.NewDense([]float64{1, 2, 3})})
	assert.True(t, errors.As(err, &de))
}

func TestModel_PredictBatchMatchesPredict(t *testing.T) {
	m := trainedLogistic(t).ClearThreshold()

	points := dataset.GenerateLogisticInput(0, 1, 2*parallelThreshold+3, 8)
	xs := make([]linalg.Vector, len(points))
	for i, p := range points {
		xs[i] = p.Features
	}
	batch, err := m.PredictBatch(xs)
	require.NoError(t, err)
	for i, x := range xs {
		want, err := m.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, want, batch[i])
	}
}

func TestModel_SparseInput(t *testing.T) {
	m := trainedLogistic(t).ClearThreshold()
	dense, err := m.Predict(linalg.NewDense([]float64{0.7}))
	require.NoError(t, err)
	sparse, err := m.Predict(linalg.NewSparse(1, []int{0}, []float64{0.7}))
	require.NoError(t, err)
	assert.Equal(t, dense, sparse)
}

func TestModel_ExportImport(t *testing.T) {
	m := trainedLogistic(t)
	mw, err := m.ExportWeights()
	require.NoError(t, err)
	assert.Equal(t, "LogisticRegressionWithSGD", mw.ModelType)
	require.NotNil(t, mw.Threshold)
	assert.Equal(t, 0.5, *mw.Threshold)

	var buf bytes.Buffer
	require.NoError(t, mw.Encode(&buf))
	decoded, err := model.DecodeWeights(&buf)
	require.NoError(t, err)

	loaded, err := LoadModel(decoded)
	require.NoError(t, err)
	assert.Equal(t, m.Weights(), loaded.Weights())
	assert.Equal(t, m.Intercept(), loaded.Intercept())

	for _, v := range []float64{-2, -0.1, 0, 1.3, 4} {
		x := linalg.NewDense([]float64{v})
		want, _ := m.Predict(x)
		got, err := loaded.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestModel_ExportImportMultinomial(t *testing.T) {
	centers := [][]float64{{-2, -2}, {2, -2}, {0, 2.5}}
	points := dataset.GenerateMultinomialInput(centers, 0.7, 90, 2)
	alg, err := NewLogisticRegressionWithSGD(WithNumClasses(3), WithIntercept(true), WithLogger(silentLogger()))
	require.NoError(t, err)
	m, err := alg.Run(context.Background(), partitioned(t, points, 2), nil)
	require.NoError(t, err)

	mw, err := m.ExportWeights()
	require.NoError(t, err)
	loaded, err := LoadModel(mw)
	require.NoError(t, err)
	assert.True(t, loaded.bias)
	for _, p := range points {
		want, _ := m.Predict(p.Features)
		got, err := loaded.Predict(p.Features)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoadModel_Invalid(t *testing.T) {
	base := model.ModelWeights{
		ModelType:    "LogisticRegressionWithSGD",
		Version:      model.WeightsVersion,
		Coefficients: []float64{1, 2},
		State:        model.State{Fitted: true, NFeatures: 3},
	}

	_, err := LoadModel(&base)
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	unknown := base
	unknown.ModelType = "DecisionTree"
	_, err = LoadModel(&unknown)
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "model_type", ve.ParamName)
}

func TestPredictClass_PivotWinsTies(t *testing.T) {
	m := &Model{
		StateManager: model.NewStateManager("LogisticRegressionWithSGD"),
		kind:         Logistic,
		numClasses:   3,
		numFeatures:  1,
		weights:      mat.NewVecDense(2, []float64{-1, 0}),
	}
	m.SetFitted(1, 1)

	got, err := m.Predict(linalg.NewDense([]float64{1}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)

	got, err = m.Predict(linalg.NewDense([]float64{-1}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func BenchmarkPredictBatch(b *testing.B) {
	m := &Model{
		StateManager: model.NewStateManager("LinearRegressionWithSGD"),
		kind:         Regression,
		numFeatures:  20,
		weights:      mat.NewVecDense(20, nil),
	}
	m.SetFitted(20, 0)
	points := dataset.GenerateLinearInput(1, make([]float64, 20), 20000, 0.1, 42)
	xs := make([]linalg.Vector, len(points))
	for i, p := range points {
		xs[i] = p.Features
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.PredictBatch(xs); err != nil {
			b.Fatal(err)
		}
	}
}
