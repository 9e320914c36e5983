package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/linear"
	"github.com/YuminosukeSato/optml/metrics"
	"github.com/YuminosukeSato/optml/optimization"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

// True parameters of the binary scenario: P(y=1|x) = sigmoid(2 - 1.5x).
const (
	logisticOffset = 2.0
	logisticScale  = -1.5
)

func logisticDefaults() runConfig {
	return runConfig{
		Samples:           10000,
		Iterations:        100,
		StepSize:          10.0,
		Seed:              42,
		Partitions:        4,
		MiniBatchFraction: 1.0,
		Updater:           "simple",
		Optimizer:         "sgd",
	}
}

func newLogisticCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logistic",
		Short: "Fit a binary logistic regression to data drawn from a known model",
		Args:  cobra.NoArgs,
		RunE:  logisticHandler,
	}
	cmd.Flags().Float64("reg-param", 0, "Regularization strength")
	cmd.Flags().String("updater", "", "SGD update rule (simple, l1, l2, constant)")
	cmd.Flags().Bool("feature-scaling", false, "Train on features scaled to unit standard deviation")
	return cmd
}

type logisticResult struct {
	model      *linear.Model
	accuracy   float64
	iterations int
}

func logisticHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd, logisticDefaults())
	if err != nil {
		return err
	}
	res, err := trainLogistic(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	renderLogistic(cmd.OutOrStdout(), res)
	return finish(cfg, "logistic regression loss", res.model.LossHistory(), res.model)
}

// sgdOptions maps the run configuration onto optimizer options.
func sgdOptions(cfg runConfig) []optimization.Option {
	return []optimization.Option{
		optimization.WithNumIterations(cfg.Iterations),
		optimization.WithStepSize(cfg.StepSize),
		optimization.WithRegParam(cfg.RegParam),
		optimization.WithMiniBatchFraction(cfg.MiniBatchFraction),
		optimization.WithSeed(cfg.Seed),
	}
}

func newLogisticAlgorithm(cfg runConfig, opts ...linear.Option) (*linear.Algorithm, error) {
	switch cfg.Optimizer {
	case "sgd":
		updater, ok := optimization.UpdaterByName(cfg.Updater)
		if !ok {
			return nil, errors.NewValidationError("updater", "unknown update rule", cfg.Updater)
		}
		opts = append(opts, linear.WithUpdater(updater), linear.WithOptimizerOptions(sgdOptions(cfg)...))
		return linear.NewLogisticRegressionWithSGD(opts...)
	case "lbfgs":
		opts = append(opts, linear.WithOptimizerOptions(
			optimization.WithNumIterations(cfg.Iterations),
			optimization.WithRegParam(cfg.RegParam),
		))
		return linear.NewLogisticRegressionWithLBFGS(opts...)
	}
	return nil, errors.NewValidationError("optimizer", "must be sgd or lbfgs", cfg.Optimizer)
}

func trainLogistic(ctx context.Context, cfg runConfig) (*logisticResult, error) {
	train, err := dataset.Partition(dataset.GenerateLogisticInput(logisticOffset, logisticScale, cfg.Samples, cfg.Seed), cfg.Partitions)
	if err != nil {
		return nil, err
	}
	alg, err := newLogisticAlgorithm(cfg, linear.WithIntercept(true), linear.WithFeatureScaling(cfg.FeatureScaling))
	if err != nil {
		return nil, err
	}
	m, err := alg.Run(ctx, train, nil)
	if err != nil {
		return nil, err
	}

	validation := dataset.GenerateLogisticInput(logisticOffset, logisticScale, cfg.Samples, cfg.Seed+1)
	acc, err := evaluate(m, validation)
	if err != nil {
		return nil, err
	}
	return &logisticResult{model: m, accuracy: acc, iterations: len(m.LossHistory())}, nil
}

// evaluate returns the accuracy of m on points.
func evaluate(m *linear.Model, points []dataset.LabeledPoint) (float64, error) {
	xs := make([]linalg.Vector, len(points))
	labels := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Features
		labels[i] = p.Label
	}
	preds, err := m.PredictBatch(xs)
	if err != nil {
		return 0, err
	}
	return metrics.Accuracy(mat.NewVecDense(len(labels), labels), mat.NewVecDense(len(preds), preds))
}

func renderLogistic(w io.Writer, res *logisticResult) {
	table := newTable(w, "PARAMETER", "TRUE", "LEARNED")
	table.Append([]string{"weight", fmt.Sprintf("%.4f", logisticScale), fmt.Sprintf("%.4f", res.model.Weights()[0])})
	table.Append([]string{"intercept", fmt.Sprintf("%.4f", logisticOffset), fmt.Sprintf("%.4f", res.model.Intercept())})
	table.Render()

	summary := newTable(w, "ITERATIONS", "FINAL LOSS", "VALIDATION ACCURACY")
	summary.Append([]string{
		fmt.Sprintf("%d", res.iterations),
		fmt.Sprintf("%.6f", lastLoss(res.model.LossHistory())),
		fmt.Sprintf("%.4f", res.accuracy),
	})
	summary.Render()
}

func lastLoss(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1]
}
