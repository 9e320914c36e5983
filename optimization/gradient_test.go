package optimization

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

var approx = cmpopts.EquateApprox(1e-12, 1e-12)

func vec(data ...float64) *mat.VecDense {
	return mat.NewVecDense(len(data), data)
}

func raw(v *mat.VecDense) []float64 {
	return linalg.ToSlice(v)
}

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

// expectPanic runs fn and returns the error it panicked with.
func expectPanic(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		var ok bool
		err, ok = r.(error)
		require.True(t, ok, "panic value should be an error, got %T", r)
	}()
	fn()
	return nil
}

func TestLeastSquaresGradient(t *testing.T) {
	g := LeastSquaresGradient{}

	grad, loss := g.Compute(linalg.NewDense([]float64{1}), 2, vec(0))
	assert.Equal(t, 4.0, loss)
	assert.Equal(t, []float64{-4}, raw(grad))

	cum := vec(1)
	loss = g.ComputeInto(linalg.NewDense([]float64{1}), 2, vec(0), cum)
	assert.Equal(t, 4.0, loss)
	assert.Equal(t, []float64{-3}, raw(cum), "ComputeInto must add to existing contents")
}

func TestHingeGradient(t *testing.T) {
	g := HingeGradient{}
	x := linalg.NewDense([]float64{1, 2})

	tests := []struct {
		name     string
		label    float64
		weights  *mat.VecDense
		wantLoss float64
		wantGrad []float64
	}{
		{"positive beyond margin", 1, vec(1, 1), 0, []float64{0, 0}},
		{"positive on margin", 1, vec(1, 0), 0, []float64{0, 0}},
		{"positive inside margin", 1, vec(0.1, 0.1), 1 - 0.3, []float64{-1, -2}},
		{"negative inside margin", 0, vec(0.1, 0.1), 1 + 0.3, []float64{1, 2}},
		{"negative beyond margin", 0, vec(-1, -1), 0, []float64{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grad, loss := g.Compute(x, tt.label, tt.weights)
			assert.InDelta(t, tt.wantLoss, loss, 1e-12)
			assert.Equal(t, tt.weights.Len(), grad.Len())
			assert.True(t, cmp.Equal(tt.wantGrad, raw(grad), approx), cmp.Diff(tt.wantGrad, raw(grad)))
		})
	}
}

func TestLogisticGradientBinaryClosedForm(t *testing.T) {
	g := LogisticGradient{}
	x := linalg.NewDense([]float64{0.5, -1.2, 3.0})
	w := vec(0.3, 0.1, -0.2)
	margin := 0.5*0.3 - 1.2*0.1 - 3.0*0.2
	p := sigmoid(margin)

	for _, y := range []float64{0, 1} {
		grad, loss := g.Compute(x, y, w)

		wantLoss := -(y*math.Log(p) + (1-y)*math.Log(1-p))
		assert.InDelta(t, wantLoss, loss, 1e-12, "label %v", y)

		want := []float64{(p - y) * 0.5, (p - y) * -1.2, (p - y) * 3.0}
		assert.True(t, cmp.Equal(want, raw(grad), approx), cmp.Diff(want, raw(grad)))
	}
}

func TestLogisticGradientMultinomialZeroWeights(t *testing.T) {
	g, err := NewLogisticGradient(3)
	require.NoError(t, err)

	features := []float64{1.5, -2, 0.25}
	x := linalg.NewDense(features)
	w := mat.NewVecDense(6, nil)

	for class := 0; class < 3; class++ {
		grad, loss := g.Compute(x, float64(class), w)
		assert.InDelta(t, math.Log(3), loss, 1e-12, "class %d", class)

		want := make([]float64, 6)
		for block := 0; block < 2; block++ {
			coef := 1.0 / 3
			if class == block+1 {
				coef -= 1
			}
			for j, f := range features {
				want[block*3+j] = coef * f
			}
		}
		assert.True(t, cmp.Equal(want, raw(grad), approx), cmp.Diff(want, raw(grad)))
	}
}

// referenceMultinomial evaluates the unstabilized formulas directly.
func referenceMultinomial(x []float64, label int, w []float64) ([]float64, float64) {
	d := len(x)
	k := len(w)/d + 1
	num := make([]float64, k-1)
	denom := 1.0
	for i := range num {
		m := 0.0
		for j := range x {
			m += w[i*d+j] * x[j]
		}
		num[i] = math.Exp(m)
		denom += num[i]
	}
	grad := make([]float64, len(w))
	for i := range num {
		alpha, delta := 0.0, 0.0
		if label == 0 {
			alpha = 1
		}
		if label == i+1 {
			delta = 1
		}
		mult := (1-alpha)*delta - num[i]/denom
		for j := range x {
			grad[i*d+j] -= mult * x[j]
		}
	}
	if label == 0 {
		return grad, -math.Log(1 / denom)
	}
	return grad, -math.Log(num[label-1] / denom)
}

func TestLogisticGradientMatchesReferenceFormula(t *testing.T) {
	x := []float64{0.7, -0.3, 1.1, 0}
	w := []float64{
		0.2, -0.5, 0.3, 0.9,
		-1.0, 0.4, 0.8, -0.2,
		0.6, 0.6, -0.7, 0.1,
	}
	g := LogisticGradient{}

	for label := 0; label < 4; label++ {
		wantGrad, wantLoss := referenceMultinomial(x, label, w)
		grad, loss := g.Compute(linalg.NewDense(x), float64(label), vec(w...))

		assert.InDelta(t, wantLoss, loss, 1e-12, "label %d", label)
		assert.True(t, cmp.Equal(wantGrad, raw(grad), approx), cmp.Diff(wantGrad, raw(grad)))
	}
}

func TestLogisticGradientLargeMarginsStayFinite(t *testing.T) {
	g := LogisticGradient{}
	x := linalg.NewDense([]float64{1, 1})

	// margins 800 and -5 for a three-class model
	w := vec(400, 400, -2.5, -2.5)

	grad, loss := g.Compute(x, 1, w)
	assert.False(t, math.IsNaN(loss) || math.IsInf(loss, 0))
	assert.InDelta(t, 0, loss, 1e-12)
	for _, v := range raw(grad) {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}

	_, loss = g.Compute(x, 0, w)
	assert.InDelta(t, 800, loss, 1e-9)

	_, loss = g.Compute(x, 2, w)
	assert.InDelta(t, 805, loss, 1e-9)
}

func TestComputeMatchesComputeInto(t *testing.T) {
	x := linalg.NewSparse(5, []int{0, 3, 4}, []float64{1.5, -0.5, 2})

	tests := []struct {
		name    string
		g       Gradient
		label   float64
		weights *mat.VecDense
	}{
		{"least squares", LeastSquaresGradient{}, 0.7, vec(0.1, 0.2, 0.3, 0.4, 0.5)},
		{"hinge", HingeGradient{}, 1, vec(0.1, 0.2, 0.3, 0.4, 0.5)},
		{"logistic binary", LogisticGradient{}, 1, vec(0.1, 0.2, 0.3, 0.4, 0.5)},
		{"logistic multinomial", LogisticGradient{}, 2, vec(
			0.1, 0.2, 0.3, 0.4, 0.5,
			-0.5, 0.4, -0.3, 0.2, -0.1,
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := raw(tt.weights)

			fresh, freshLoss := tt.g.Compute(x, tt.label, tt.weights)
			cum := mat.NewVecDense(tt.weights.Len(), nil)
			cumLoss := tt.g.ComputeInto(x, tt.label, tt.weights, cum)

			assert.InDelta(t, freshLoss, cumLoss, 1e-12)
			assert.True(t, cmp.Equal(raw(fresh), raw(cum), approx), cmp.Diff(raw(fresh), raw(cum)))
			assert.Equal(t, before, raw(tt.weights), "weights must not be modified")
		})
	}
}

func TestSparseAccumulationLeavesInactivePositions(t *testing.T) {
	const sentinel = 100.0
	a := linalg.NewSparse(6, []int{0, 2}, []float64{1, -1})
	b := linalg.NewSparse(6, []int{1, 5}, []float64{0, 3}) // explicit zero at 1

	tests := []struct {
		name      string
		g         Gradient
		weights   *mat.VecDense
		untouched []int
	}{
		{"least squares", LeastSquaresGradient{}, vec(1, 1, 1, 1, 1, 1), []int{1, 3, 4}},
		{"hinge", HingeGradient{}, mat.NewVecDense(6, nil), []int{1, 3, 4}},
		{"logistic multinomial", LogisticGradient{}, mat.NewVecDense(12, nil), []int{1, 3, 4, 7, 9, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cum := mat.NewVecDense(tt.weights.Len(), nil)
			for i := 0; i < cum.Len(); i++ {
				cum.SetVec(i, sentinel)
			}
			tt.g.ComputeInto(a, 1, tt.weights, cum)
			tt.g.ComputeInto(b, 1, tt.weights, cum)

			for _, i := range tt.untouched {
				assert.Equal(t, sentinel, cum.AtVec(i), "position %d", i)
			}
		})
	}
}

func TestLogisticGradientPreconditions(t *testing.T) {
	x := linalg.NewDense([]float64{1, 2, 3})

	t.Run("weights not a multiple of features", func(t *testing.T) {
		err := expectPanic(t, func() { LogisticGradient{}.Compute(x, 0, vec(1, 2, 3, 4)) })
		var dimErr *errors.DimensionError
		assert.True(t, errors.As(err, &dimErr))
	})

	t.Run("buffer length mismatch", func(t *testing.T) {
		err := expectPanic(t, func() {
			LogisticGradient{}.ComputeInto(x, 0, vec(1, 2, 3), mat.NewVecDense(6, nil))
		})
		var dimErr *errors.DimensionError
		assert.True(t, errors.As(err, &dimErr))
	})

	t.Run("class count mismatch", func(t *testing.T) {
		g, err := NewLogisticGradient(3)
		require.NoError(t, err)
		err = expectPanic(t, func() { g.Compute(x, 0, vec(1, 2, 3)) })
		var dimErr *errors.DimensionError
		assert.True(t, errors.As(err, &dimErr))
	})

	t.Run("label out of range", func(t *testing.T) {
		err := expectPanic(t, func() { LogisticGradient{}.Compute(x, 2, vec(1, 2, 3)) })
		var valErr *errors.ValueError
		assert.True(t, errors.As(err, &valErr))
	})

	t.Run("too few classes", func(t *testing.T) {
		_, err := NewLogisticGradient(1)
		var valErr *errors.ValidationError
		assert.True(t, errors.As(err, &valErr))
	})
}

func TestBinaryGradientsRejectMismatchedWeights(t *testing.T) {
	x := linalg.NewDense([]float64{1, 2})
	for _, g := range []Gradient{LeastSquaresGradient{}, HingeGradient{}} {
		err := expectPanic(t, func() { g.Compute(x, 1, vec(1, 2, 3)) })
		var dimErr *errors.DimensionError
		assert.True(t, errors.As(err, &dimErr), "%T", g)
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		label float64
		want  Class
	}{
		{0, PivotClass{}},
		{-0.4, PivotClass{}},
		{0.6, NonPivotClass{Index: 0, Offset: 0}},
		{2, NonPivotClass{Index: 1, Offset: 4}},
		{2.4, NonPivotClass{Index: 1, Offset: 4}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassOf(tt.label, 3, 4), "label %v", tt.label)
	}

	assert.Panics(t, func() { ClassOf(2.5, 3, 4) })
	assert.Panics(t, func() { ClassOf(math.NaN(), 3, 4) })
}

func TestSharedGradientAcrossGoroutines(t *testing.T) {
	g := LogisticGradient{}
	w := vec(0.3, -0.2, 0.5, 0.1)
	points := make([]linalg.Vector, 64)
	labels := make([]float64, 64)
	for i := range points {
		points[i] = linalg.NewDense([]float64{float64(i%7) - 3, float64(i%5) * 0.5})
		labels[i] = float64(i % 3)
	}

	sequential := mat.NewVecDense(4, nil)
	for i := range points {
		g.ComputeInto(points[i], labels[i], w, sequential)
	}

	const workers = 4
	buffers := make([]*mat.VecDense, workers)
	var wg sync.WaitGroup
	for p := 0; p < workers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			buf := mat.NewVecDense(4, nil)
			for i := p; i < len(points); i += workers {
				g.ComputeInto(points[i], labels[i], w, buf)
			}
			buffers[p] = buf
		}(p)
	}
	wg.Wait()

	merged := mat.NewVecDense(4, nil)
	for _, b := range buffers {
		merged.AddVec(merged, b)
	}
	assert.True(t, cmp.Equal(raw(sequential), raw(merged), cmpopts.EquateApprox(1e-12, 1e-9)))
}

func BenchmarkLogisticGradientComputeInto(b *testing.B) {
	g := LogisticGradient{}
	x := linalg.NewSparse(100, []int{1, 17, 42, 99}, []float64{1, 0.5, -2, 3})
	w := mat.NewVecDense(400, nil)
	cum := mat.NewVecDense(400, nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.ComputeInto(x, float64(i%5), w, cum)
	}
}
