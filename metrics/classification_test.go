package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name  string
		yTrue *mat.VecDense
		yPred *mat.VecDense
		want  float64
	}{
		{"perfect", vec(0, 1, 2, 1, 0), vec(0, 1, 2, 1, 0), 1},
		{"one error", vec(0, 1, 2, 1, 0), vec(0, 1, 1, 1, 0), 0.8},
		{"all wrong", vec(0, 0, 0), vec(1, 1, 1), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := Accuracy(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, acc, 1e-12)

			ce, err := ClassificationError(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, 1-tt.want, ce, 1e-12)
		})
	}

	_, err := Accuracy(vec(0, 1), vec(0))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))

	_, err = ClassificationError(nil, nil)
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
}

func TestBinaryLogLoss(t *testing.T) {
	tests := []struct {
		name  string
		yTrue *mat.VecDense
		yPred *mat.VecDense
		want  float64
	}{
		{"perfect predictions are clipped", vec(0, 0, 1, 1), vec(0, 0, 1, 1), 0},
		{"typical", vec(0, 0, 1, 1), vec(0.1, 0.2, 0.8, 0.9), -(math.Log(0.9) + math.Log(0.8)) / 2},
		{"worst", vec(0, 0, 1, 1), vec(0.9, 0.9, 0.1, 0.1), -math.Log(0.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BinaryLogLoss(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	_, err := BinaryLogLoss(vec(0, 0.5, 1), vec(0.1, 0.5, 0.9))
	var ve *errors.ValueError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "BinaryLogLoss", ve.Op)
}

func BenchmarkBinaryLogLoss(b *testing.B) {
	n := 1000
	yTrue := mat.NewVecDense(n, nil)
	yPred := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		if i >= n/2 {
			yTrue.SetVec(i, 1)
		}
		yPred.SetVec(i, 0.1+0.8*float64(i)/float64(n))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = BinaryLogLoss(yTrue, yPred)
	}
}
