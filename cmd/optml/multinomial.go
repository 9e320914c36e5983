package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/linear"
)

var multinomialCenters = [][]float64{{-2, -2}, {2, -2}, {0, 2.5}}

const multinomialSigma = 0.7

func multinomialDefaults() runConfig {
	return runConfig{
		Samples:           600,
		Iterations:        100,
		StepSize:          1.0,
		Seed:              5,
		Partitions:        3,
		MiniBatchFraction: 1.0,
		Updater:           "simple",
		Optimizer:         "sgd",
	}
}

func newMultinomialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multinomial",
		Short: "Fit a three-class multinomial logistic regression to Gaussian clusters",
		Args:  cobra.NoArgs,
		RunE:  multinomialHandler,
	}
	cmd.Flags().Float64("reg-param", 0, "Regularization strength")
	cmd.Flags().String("updater", "", "SGD update rule (simple, l1, l2, constant)")
	return cmd
}

func multinomialHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd, multinomialDefaults())
	if err != nil {
		return err
	}
	res, err := trainMultinomial(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	renderMultinomial(cmd.OutOrStdout(), res)
	return finish(cfg, "multinomial logistic regression loss", res.model.LossHistory(), res.model)
}

func trainMultinomial(ctx context.Context, cfg runConfig) (*logisticResult, error) {
	k := len(multinomialCenters)
	train, err := dataset.Partition(dataset.GenerateMultinomialInput(multinomialCenters, multinomialSigma, cfg.Samples, cfg.Seed), cfg.Partitions)
	if err != nil {
		return nil, err
	}
	alg, err := newLogisticAlgorithm(cfg, linear.WithIntercept(true), linear.WithNumClasses(k))
	if err != nil {
		return nil, err
	}
	m, err := alg.Run(ctx, train, nil)
	if err != nil {
		return nil, err
	}

	validation := dataset.GenerateMultinomialInput(multinomialCenters, multinomialSigma, cfg.Samples, cfg.Seed+1)
	acc, err := evaluate(m, validation)
	if err != nil {
		return nil, err
	}
	return &logisticResult{model: m, accuracy: acc, iterations: len(m.LossHistory())}, nil
}

func renderMultinomial(w io.Writer, res *logisticResult) {
	weights := res.model.Weights()
	blocks := res.model.NumClasses() - 1
	dim := len(weights) / blocks

	table := newTable(w, "CLASS", "WEIGHTS (LAST IS INTERCEPT)")
	table.Append([]string{"0", "pivot"})
	for c := 0; c < blocks; c++ {
		parts := make([]string, dim)
		for j, v := range weights[c*dim : (c+1)*dim] {
			parts[j] = fmt.Sprintf("%.4f", v)
		}
		table.Append([]string{fmt.Sprintf("%d", c+1), strings.Join(parts, " ")})
	}
	table.Render()

	summary := newTable(w, "ITERATIONS", "FINAL LOSS", "VALIDATION ACCURACY")
	summary.Append([]string{
		fmt.Sprintf("%d", res.iterations),
		fmt.Sprintf("%.6f", lastLoss(res.model.LossHistory())),
		fmt.Sprintf("%.4f", res.accuracy),
	})
	summary.Render()
}
