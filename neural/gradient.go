package neural

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/optimization"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

// Gradient computes the cross-entropy gradient of a network by
// backpropagation. Examples are stacked vectors [input; target]; the label
// argument is ignored.
//
// A Gradient holds only its topology and is safe for concurrent use.
type Gradient struct {
	topology Topology
	layers   []layer
}

var _ optimization.Gradient = Gradient{}

// NewGradient returns the gradient for networks of topology t.
func NewGradient(t Topology) Gradient {
	return Gradient{topology: t, layers: t.layers()}
}

// Compute implements optimization.Gradient.
func (g Gradient) Compute(x linalg.Vector, label float64, weights *mat.VecDense) (*mat.VecDense, float64) {
	grad := mat.NewVecDense(weights.Len(), nil)
	loss := g.ComputeInto(x, label, weights, grad)
	return grad, loss
}

// ComputeInto implements optimization.Gradient.
func (g Gradient) ComputeInto(x linalg.Vector, _ float64, weights, cumGradient *mat.VecDense) float64 {
	in, out := g.topology.InputSize(), g.topology.OutputSize()
	if x.Len() != in+out {
		panic(errors.NewDimensionError("neural.Gradient", in+out, x.Len(), 1))
	}
	if weights.Len() != g.topology.NumWeights() {
		panic(errors.NewDimensionError("neural.Gradient", g.topology.NumWeights(), weights.Len(), 1))
	}
	if cumGradient.Len() != weights.Len() {
		panic(errors.NewDimensionError("neural.Gradient", weights.Len(), cumGradient.Len(), 1))
	}

	input := mat.NewVecDense(in, nil)
	target := make([]float64, out)
	x.DoNonZero(func(i int, v float64) {
		if i < in {
			input.SetVec(i, v)
		} else {
			target[i-in] = v
		}
	})

	w := weights.RawVector().Data
	acts, logits := g.forward(w, input)

	// Output layer: cross-entropy on logits, delta = o - t.
	loss := 0.0
	o := acts[len(acts)-1]
	delta := mat.NewVecDense(out, nil)
	for j := 0; j < out; j++ {
		z := logits.AtVec(j)
		loss += errors.Log1pExp(z) - target[j]*z
		delta.SetVec(j, o.AtVec(j)-target[j])
	}

	cum := cumGradient.RawVector().Data
	for l := len(g.layers) - 1; l >= 0; l-- {
		ly := g.layers[l]
		a := acts[l]

		gw := mat.NewDense(ly.out, ly.in, cum[ly.offset:ly.bias])
		gw.RankOne(gw, 1, delta, a)
		floats.Add(cum[ly.bias:ly.bias+ly.out], delta.RawVector().Data)

		if l == 0 {
			break
		}
		prev := mat.NewVecDense(ly.in, nil)
		prev.MulVec(weightMatrix(w, ly).T(), delta)
		for i := 0; i < ly.in; i++ {
			ai := a.AtVec(i)
			prev.SetVec(i, prev.AtVec(i)*ai*(1-ai))
		}
		delta = prev
	}
	return loss
}

// forward returns the activations of every layer, input included, and the
// pre-activation of the output layer.
func (g Gradient) forward(w []float64, input *mat.VecDense) ([]*mat.VecDense, *mat.VecDense) {
	return forward(g.layers, w, input)
}

func forward(layers []layer, w []float64, input *mat.VecDense) ([]*mat.VecDense, *mat.VecDense) {
	acts := make([]*mat.VecDense, 0, len(layers)+1)
	acts = append(acts, input)
	var z *mat.VecDense
	a := input
	for _, ly := range layers {
		z = mat.NewVecDense(ly.out, nil)
		z.MulVec(weightMatrix(w, ly), a)
		floats.Add(z.RawVector().Data, w[ly.bias:ly.bias+ly.out])

		next := mat.NewVecDense(ly.out, nil)
		for j := 0; j < ly.out; j++ {
			next.SetVec(j, errors.StableSigmoid(z.AtVec(j)))
		}
		acts = append(acts, next)
		a = next
	}
	return acts, z
}

func weightMatrix(w []float64, ly layer) *mat.Dense {
	return mat.NewDense(ly.out, ly.in, w[ly.offset:ly.bias])
}
