package main

import (
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/optml/core/model"
	"github.com/YuminosukeSato/optml/metrics"
	"github.com/YuminosukeSato/optml/pkg/errors"
	"github.com/YuminosukeSato/optml/pkg/log"
)

func newRootCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "optml",
		Short:         "Train distributed-gradient models on synthetic data",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			return log.SetupLogger(cmd.ErrOrStderr(), level)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "YAML file with training settings")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.Int("samples", 0, "Number of synthetic training points")
	pf.Int("iterations", 0, "Optimizer iterations")
	pf.Float64("step-size", 0, "Initial step size")
	pf.Uint64("seed", 0, "Random seed for data generation and sampling")
	pf.Int("partitions", 0, "Number of data partitions processed in parallel")
	pf.Float64("mini-batch-fraction", 0, "Fraction of each partition sampled per iteration")
	pf.String("optimizer", "", "Optimizer (sgd, lbfgs)")
	pf.String("plot", "", "Write the loss curve to this image file")
	pf.String("export", "", "Write the trained weights as JSON to this file")

	rootCmd.AddCommand(newLogisticCmd(), newMultinomialCmd(), newXORCmd())
	return rootCmd
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

// finish writes the optional loss plot and weights export.
func finish(cfg runConfig, title string, history []float64, exporter model.WeightsExporter) error {
	if cfg.Plot != "" {
		if err := metrics.SaveLossCurve(history, title, cfg.Plot); err != nil {
			return err
		}
	}
	if cfg.Export != "" {
		mw, err := exporter.ExportWeights()
		if err != nil {
			return err
		}
		f, err := os.Create(cfg.Export)
		if err != nil {
			return errors.Wrapf(err, "create %s", cfg.Export)
		}
		defer f.Close()
		if err := mw.Encode(f); err != nil {
			return err
		}
	}
	return nil
}
