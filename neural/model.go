package neural

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/core/model"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

const modelType = "MultilayerPerceptron"

// Model is a trained network.
type Model struct {
	topology    Topology
	layers      []layer
	weights     *mat.VecDense
	lossHistory []float64
	samples     int
}

var _ model.WeightsExporter = (*Model)(nil)

// NewModel wraps weights laid out for topology t.
func NewModel(t Topology, weights *mat.VecDense) (*Model, error) {
	if weights.Len() != t.NumWeights() {
		return nil, errors.NewDimensionError("neural.NewModel", t.NumWeights(), weights.Len(), 1)
	}
	return &Model{topology: t, layers: t.layers(), weights: mat.VecDenseCopyOf(weights)}, nil
}

// Topology returns the layer widths.
func (m *Model) Topology() Topology { return m.topology }

// Weights returns a copy of the flat weight vector.
func (m *Model) Weights() []float64 { return linalg.ToSlice(m.weights) }

// LossHistory returns the training loss of every iteration of every pass.
func (m *Model) LossHistory() []float64 { return m.lossHistory }

// Predict runs a forward pass and returns the output activations.
// The model is not modified.
func (m *Model) Predict(input []float64) ([]float64, error) {
	if len(input) != m.topology.InputSize() {
		return nil, errors.NewDimensionError("neural.Predict", m.topology.InputSize(), len(input), 1)
	}
	x := mat.NewVecDense(len(input), append([]float64(nil), input...))
	acts, _ := forward(m.layers, m.weights.RawVector().Data, x)
	return linalg.ToSlice(acts[len(acts)-1]), nil
}

// ExportWeights snapshots the network. The layer widths are stored in the
// "layers" hyperparameter.
func (m *Model) ExportWeights() (*model.ModelWeights, error) {
	return &model.ModelWeights{
		ModelType:       modelType,
		Version:         model.WeightsVersion,
		Coefficients:    m.Weights(),
		Hyperparameters: map[string]interface{}{"layers": append([]int(nil), m.topology.Layers...)},
		State:           model.State{Fitted: true, NFeatures: m.topology.InputSize(), NSamples: m.samples},
	}, nil
}

// ImportWeights restores a network exported with ExportWeights, possibly
// after a JSON round trip.
func (m *Model) ImportWeights(mw *model.ModelWeights) error {
	if err := mw.Validate(); err != nil {
		return err
	}
	if mw.ModelType != modelType {
		return errors.NewValidationError("model_type", "not a "+modelType, mw.ModelType)
	}
	layers, err := layerWidths(mw.Hyperparameters["layers"])
	if err != nil {
		return err
	}
	topo := Topology{Layers: layers}
	if len(mw.Coefficients) != topo.NumWeights() {
		return errors.NewDimensionError("neural.ImportWeights", topo.NumWeights(), len(mw.Coefficients), 1)
	}
	m.topology = topo
	m.layers = topo.layers()
	m.weights = mat.NewVecDense(len(mw.Coefficients), append([]float64(nil), mw.Coefficients...))
	m.samples = mw.State.NSamples
	m.lossHistory = nil
	return nil
}

// layerWidths accepts []int or the []interface{} of numbers produced by JSON decoding.
func layerWidths(v interface{}) ([]int, error) {
	var widths []int
	switch vs := v.(type) {
	case []int:
		widths = append(widths, vs...)
	case []interface{}:
		for _, e := range vs {
			f, ok := e.(float64)
			if !ok || f != float64(int(f)) {
				return nil, errors.NewValidationError("layers", "layer widths must be integers", v)
			}
			widths = append(widths, int(f))
		}
	default:
		return nil, errors.NewValidationError("layers", "missing layer widths", v)
	}
	if len(widths) < 2 {
		return nil, errors.NewValidationError("layers", "need at least input and output layers", widths)
	}
	for _, w := range widths {
		if w <= 0 {
			return nil, errors.NewValidationError("layers", "layer widths must be positive", widths)
		}
	}
	return widths, nil
}

// LoadModel builds a Model from exported weights.
func LoadModel(mw *model.ModelWeights) (*Model, error) {
	m := &Model{}
	if err := m.ImportWeights(mw); err != nil {
		return nil, err
	}
	return m, nil
}
