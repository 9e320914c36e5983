package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/neural"
)

func xorDefaults() runConfig {
	return runConfig{
		Samples:           4,
		Iterations:        200,
		StepSize:          5.0,
		Seed:              42,
		Partitions:        1,
		MiniBatchFraction: 1.0,
		Optimizer:         neural.OptimizerSGD,
		Hidden:            []int{8},
	}
}

func newXORCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xor",
		Short: "Train a multilayer perceptron on the XOR truth table",
		Args:  cobra.NoArgs,
		RunE:  xorHandler,
	}
	cmd.Flags().IntSlice("hidden", nil, "Hidden layer widths (default 8)")
	return cmd
}

type xorResult struct {
	model   *neural.Model
	pairs   []neural.Pair
	outputs []float64
}

func xorHandler(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd, xorDefaults())
	if err != nil {
		return err
	}
	res, err := trainXOR(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	renderXOR(cmd.OutOrStdout(), res)
	return finish(cfg, "XOR network loss", res.model.LossHistory(), res.model)
}

func trainXOR(ctx context.Context, cfg runConfig) (*xorResult, error) {
	inputs, targets := dataset.XORTable()
	pairs := make([]neural.Pair, len(inputs))
	for i := range inputs {
		pairs[i] = neural.Pair{Input: inputs[i], Target: targets[i]}
	}

	trainer, err := neural.NewTrainer(
		neural.WithHiddenLayers(cfg.Hidden...),
		neural.WithSeed(cfg.Seed),
		neural.WithIterationsPerPass(cfg.Iterations),
		neural.WithStepSize(cfg.StepSize),
		neural.WithMiniBatchFraction(cfg.MiniBatchFraction),
		neural.WithOptimizer(cfg.Optimizer),
		neural.WithPartitions(cfg.Partitions),
	)
	if err != nil {
		return nil, err
	}
	m, err := trainer.Train(ctx, pairs)
	if err != nil {
		return nil, err
	}

	res := &xorResult{model: m, pairs: pairs, outputs: make([]float64, len(pairs))}
	for i, p := range pairs {
		out, err := m.Predict(p.Input)
		if err != nil {
			return nil, err
		}
		res.outputs[i] = out[0]
	}
	return res, nil
}

func renderXOR(w io.Writer, res *xorResult) {
	table := newTable(w, "INPUT", "TARGET", "OUTPUT", "ROUNDED")
	for i, p := range res.pairs {
		table.Append([]string{
			fmt.Sprintf("%g %g", p.Input[0], p.Input[1]),
			fmt.Sprintf("%g", p.Target[0]),
			fmt.Sprintf("%.4f", res.outputs[i]),
			fmt.Sprintf("%g", math.Round(res.outputs[i])),
		})
	}
	table.Render()
}
