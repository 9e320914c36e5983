package dataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

// GenerateLogisticInput draws n points with one N(0,1) feature x and a label
// sampled from P(y=1|x) = sigmoid(offset + scale·x).
func GenerateLogisticInput(offset, scale float64, n int, seed uint64) []LabeledPoint {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}

	points := make([]LabeledPoint, n)
	for i := range points {
		x := normal.Rand()
		p := errors.StableSigmoid(offset + scale*x)
		label := 0.0
		if rng.Float64() < p {
			label = 1.0
		}
		points[i] = NewLabeledPoint(label, x)
	}
	return points
}

// GenerateLinearInput draws n points y = intercept + w·x + N(0, noise²) with
// x uniform in [-1, 1]^len(weights).
func GenerateLinearInput(intercept float64, weights []float64, n int, noise float64, seed uint64) []LabeledPoint {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	eps := distuv.Normal{Mu: 0, Sigma: noise, Src: rng}

	points := make([]LabeledPoint, n)
	for i := range points {
		x := make([]float64, len(weights))
		y := intercept
		for j, w := range weights {
			x[j] = 2*rng.Float64() - 1
			y += w * x[j]
		}
		if noise > 0 {
			y += eps.Rand()
		}
		points[i] = NewLabeledPoint(y, x...)
	}
	return points
}

// GenerateMultinomialInput draws n points from isotropic Gaussian clusters,
// one per center, labeled with the center index.
func GenerateMultinomialInput(centers [][]float64, sigma float64, n int, seed uint64) []LabeledPoint {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}

	points := make([]LabeledPoint, n)
	for i := range points {
		c := rng.IntN(len(centers))
		x := make([]float64, len(centers[c]))
		for j, mu := range centers[c] {
			x[j] = mu + normal.Rand()
		}
		points[i] = NewLabeledPoint(float64(c), x...)
	}
	return points
}

// XORTable returns the four-row XOR truth table as (input, target) pairs.
func XORTable() (inputs, targets [][]float64) {
	inputs = [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	targets = [][]float64{{0}, {1}, {1}, {0}}
	return inputs, targets
}
