// Package neural trains fully connected feed-forward networks with the
// optimizers of package optimization.
//
// All layers use the logistic sigmoid and the loss is the binary
// cross-entropy summed over output units, so targets are expected in [0, 1].
// The weights of a network live in one flat vector, layer after layer; each
// layer stores its out×in weight matrix in row-major order followed by its
// out biases.
package neural

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

// Pair is a training example: an input vector and its target output.
type Pair struct {
	Input  []float64
	Target []float64
}

// Topology lists the layer widths of a network, input first and output last.
type Topology struct {
	Layers []int
}

// NewTopology infers the input and output widths from sample and places the
// hidden layers between them.
func NewTopology(sample Pair, hidden []int) (Topology, error) {
	if len(sample.Input) == 0 {
		return Topology{}, errors.NewValidationError("input", "sample input must not be empty", 0)
	}
	if len(sample.Target) == 0 {
		return Topology{}, errors.NewValidationError("target", "sample target must not be empty", 0)
	}
	layers := make([]int, 0, len(hidden)+2)
	layers = append(layers, len(sample.Input))
	for i, w := range hidden {
		if w <= 0 {
			return Topology{}, errors.NewValidationError("hiddenLayers", "layer widths must be positive",
				map[string]int{"layer": i, "width": w})
		}
		layers = append(layers, w)
	}
	layers = append(layers, len(sample.Target))
	return Topology{Layers: layers}, nil
}

// InputSize returns the width of the input layer.
func (t Topology) InputSize() int { return t.Layers[0] }

// OutputSize returns the width of the output layer.
func (t Topology) OutputSize() int { return t.Layers[len(t.Layers)-1] }

// NumLayers returns the number of weight layers.
func (t Topology) NumLayers() int { return len(t.Layers) - 1 }

// NumWeights returns the length of the flat weight vector.
func (t Topology) NumWeights() int {
	n := 0
	for l := 0; l < t.NumLayers(); l++ {
		n += t.Layers[l+1] * (t.Layers[l] + 1)
	}
	return n
}

// layer describes where weight layer l lives in the flat vector.
type layer struct {
	in, out int
	offset  int // start of the out×in weight matrix
	bias    int // start of the out biases
}

func (t Topology) layers() []layer {
	ls := make([]layer, t.NumLayers())
	off := 0
	for l := range ls {
		in, out := t.Layers[l], t.Layers[l+1]
		ls[l] = layer{in: in, out: out, offset: off, bias: off + in*out}
		off += out * (in + 1)
	}
	return ls
}

// RandomWeights draws every weight and bias uniformly from [-1, 1).
// The same seed always yields the same vector.
func RandomWeights(t Topology, seed uint64) *mat.VecDense {
	src := rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
	u := distuv.Uniform{Min: -1, Max: 1, Src: src}
	w := make([]float64, t.NumWeights())
	for i := range w {
		w[i] = u.Rand()
	}
	return mat.NewVecDense(len(w), w)
}
