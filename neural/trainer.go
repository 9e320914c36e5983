package neural

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/optimization"
	"github.com/YuminosukeSato/optml/pkg/errors"
	"github.com/YuminosukeSato/optml/pkg/log"
)

// Optimizer names accepted by WithOptimizer.
const (
	OptimizerSGD   = "sgd"
	OptimizerLBFGS = "lbfgs"
)

type trainerConfig struct {
	hidden            []int
	seed              uint64
	passes            int
	iterationsPerPass int
	stepSize          float64
	miniBatchFraction float64
	convergenceTol    float64
	optimizer         string
	partitions        int
	initialWeights    *mat.VecDense
	logger            log.Logger
}

func defaultTrainerConfig() trainerConfig {
	return trainerConfig{
		seed:              11,
		passes:            1,
		iterationsPerPass: 100,
		stepSize:          1.0,
		miniBatchFraction: 1.0,
		convergenceTol:    1e-6,
		optimizer:         OptimizerSGD,
		partitions:        1,
	}
}

// TrainerOption configures a Trainer.
type TrainerOption func(*trainerConfig)

// WithHiddenLayers sets the widths of the hidden layers.
func WithHiddenLayers(widths ...int) TrainerOption {
	return func(c *trainerConfig) { c.hidden = append([]int(nil), widths...) }
}

// WithSeed sets the seed of weight initialization and mini-batch sampling.
func WithSeed(seed uint64) TrainerOption {
	return func(c *trainerConfig) { c.seed = seed }
}

// WithPasses sets how many times the optimizer is restarted from the current weights.
func WithPasses(n int) TrainerOption {
	return func(c *trainerConfig) { c.passes = n }
}

// WithIterationsPerPass sets the optimizer iteration limit of each pass.
func WithIterationsPerPass(n int) TrainerOption {
	return func(c *trainerConfig) { c.iterationsPerPass = n }
}

// WithStepSize sets the constant SGD step size.
func WithStepSize(step float64) TrainerOption {
	return func(c *trainerConfig) { c.stepSize = step }
}

// WithMiniBatchFraction sets the SGD mini-batch fraction.
func WithMiniBatchFraction(f float64) TrainerOption {
	return func(c *trainerConfig) { c.miniBatchFraction = f }
}

// WithConvergenceTol sets the convergence tolerance of each pass.
func WithConvergenceTol(tol float64) TrainerOption {
	return func(c *trainerConfig) { c.convergenceTol = tol }
}

// WithOptimizer selects OptimizerSGD or OptimizerLBFGS.
func WithOptimizer(name string) TrainerOption {
	return func(c *trainerConfig) { c.optimizer = name }
}

// WithPartitions sets how many partitions the training pairs are split into.
func WithPartitions(n int) TrainerOption {
	return func(c *trainerConfig) { c.partitions = n }
}

// WithInitialWeights starts training from w instead of random weights.
func WithInitialWeights(w *mat.VecDense) TrainerOption {
	return func(c *trainerConfig) { c.initialWeights = w }
}

// WithLogger sets the logger of the trainer and its optimizer.
func WithLogger(l log.Logger) TrainerOption {
	return func(c *trainerConfig) { c.logger = l }
}

func (c *trainerConfig) validate() error {
	switch {
	case c.passes <= 0:
		return errors.NewValidationError("passes", "must be positive", c.passes)
	case c.iterationsPerPass < 0:
		return errors.NewValidationError("iterationsPerPass", "must be non-negative", c.iterationsPerPass)
	case c.partitions <= 0:
		return errors.NewValidationError("partitions", "must be positive", c.partitions)
	case c.optimizer != OptimizerSGD && c.optimizer != OptimizerLBFGS:
		return errors.NewValidationError("optimizer", "must be sgd or lbfgs", c.optimizer)
	}
	for i, w := range c.hidden {
		if w <= 0 {
			return errors.NewValidationError("hiddenLayers", "layer widths must be positive",
				map[string]int{"layer": i, "width": w})
		}
	}
	return nil
}

// Trainer fits multilayer perceptrons.
type Trainer struct {
	cfg    trainerConfig
	logger log.Logger
}

// NewTrainer creates a Trainer. Invalid options, including non-positive
// hidden layer widths, are reported here as a ValidationError.
func NewTrainer(opts ...TrainerOption) (*Trainer, error) {
	cfg := defaultTrainerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.logger
	if logger == nil {
		logger = log.GetLoggerWithName("neural")
	}
	return &Trainer{cfg: cfg, logger: logger.With(log.ModelNameKey, "MultilayerPerceptron")}, nil
}

func (t *Trainer) optimizer(g optimization.Gradient, pass int) (optimization.Optimizer, error) {
	common := []optimization.Option{
		optimization.WithNumIterations(t.cfg.iterationsPerPass),
		optimization.WithConvergenceTol(t.cfg.convergenceTol),
		optimization.WithLogger(t.logger),
	}
	if t.cfg.optimizer == OptimizerLBFGS {
		return optimization.NewLBFGS(g, common...)
	}
	return optimization.NewGradientDescent(g, optimization.ConstantUpdater{}, append(common,
		optimization.WithStepSize(t.cfg.stepSize),
		optimization.WithMiniBatchFraction(t.cfg.miniBatchFraction),
		optimization.WithSeed(t.cfg.seed+uint64(pass)),
	)...)
}

// stack turns pairs into points whose features are [input; target].
func stack(topo Topology, pairs []Pair) ([]dataset.LabeledPoint, error) {
	points := make([]dataset.LabeledPoint, len(pairs))
	for i, p := range pairs {
		if len(p.Input) != topo.InputSize() {
			return nil, errors.Wrapf(errors.NewDimensionError("neural.Train", topo.InputSize(), len(p.Input), 1), "pair %d input", i)
		}
		if len(p.Target) != topo.OutputSize() {
			return nil, errors.Wrapf(errors.NewDimensionError("neural.Train", topo.OutputSize(), len(p.Target), 1), "pair %d target", i)
		}
		points[i] = dataset.LabeledPoint{Features: linalg.Concat(p.Input, p.Target)}
	}
	return points, nil
}

// Train fits a network to pairs. The topology is derived from the first pair
// and validated before any optimization starts.
func (t *Trainer) Train(ctx context.Context, pairs []Pair) (*Model, error) {
	if len(pairs) == 0 {
		return nil, errors.NewModelError("neural.Train", "empty data", errors.ErrEmptyData)
	}
	topo, err := NewTopology(pairs[0], t.cfg.hidden)
	if err != nil {
		return nil, err
	}
	points, err := stack(topo, pairs)
	if err != nil {
		return nil, err
	}
	data, err := dataset.Partition(points, t.cfg.partitions)
	if err != nil {
		return nil, err
	}

	weights := RandomWeights(topo, t.cfg.seed)
	if t.cfg.initialWeights != nil {
		if t.cfg.initialWeights.Len() != topo.NumWeights() {
			return nil, errors.NewDimensionError("neural.Train", topo.NumWeights(), t.cfg.initialWeights.Len(), 1)
		}
		weights = mat.VecDenseCopyOf(t.cfg.initialWeights)
	}

	t.logger.Info("Training started",
		log.OperationKey, log.OperationTrain,
		log.LayersKey, topo.Layers,
		log.SamplesKey, len(pairs),
		log.PartitionsKey, len(data),
		log.OptimizerKey, t.cfg.optimizer,
		log.RandomSeedKey, t.cfg.seed,
	)
	start := time.Now()

	g := NewGradient(topo)
	var history []float64
	for pass := 0; pass < t.cfg.passes; pass++ {
		opt, err := t.optimizer(g, pass)
		if err != nil {
			return nil, err
		}
		w, h, err := opt.Optimize(ctx, data, weights)
		if err != nil {
			return nil, errors.Wrapf(err, "neural.Train: pass %d", pass)
		}
		weights = w
		history = append(history, h...)
		if len(h) > 0 {
			t.logger.Debug("Pass finished", log.PassKey, pass, log.LossKey, h[len(h)-1])
		}
	}

	t.logger.Info("Training finished",
		log.OperationKey, log.OperationTrain,
		log.IterationKey, len(history),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return &Model{topology: topo, layers: topo.layers(), weights: weights, lossHistory: history, samples: len(pairs)}, nil
}
