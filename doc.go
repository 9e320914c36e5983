// Package optml trains generalized linear models and small multilayer
// perceptrons with data-parallel gradient descent and L-BFGS.
//
// Training data is a dataset.Partitioned: labeled points split into
// partitions that are processed concurrently. Every loss is expressed as a
// gradient strategy with two forms, one that allocates a fresh gradient and
// one that accumulates into a caller-owned buffer. The optimizers sum the
// per-partition buffers in partition order, so a fixed seed gives the same
// model on every run.
//
// # Installation
//
//	go get github.com/YuminosukeSato/optml
//
// # Quick Start
//
// Binary logistic regression with an intercept:
//
//	package main
//
//	import (
//	    "context"
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/optml/dataset"
//	    "github.com/YuminosukeSato/optml/linear"
//	    "github.com/YuminosukeSato/optml/optimization"
//	)
//
//	func main() {
//	    points := dataset.GenerateLogisticInput(2.0, -1.5, 10000, 42)
//	    data, err := dataset.Partition(points, 4)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    alg, err := linear.NewLogisticRegressionWithSGD(
//	        linear.WithIntercept(true),
//	        linear.WithOptimizerOptions(
//	            optimization.WithStepSize(10),
//	            optimization.WithNumIterations(100),
//	        ),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    model, err := alg.Run(context.Background(), data, nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("weights:", model.Weights(), "intercept:", model.Intercept())
//	}
//
// # Packages
//
//   - optimization: gradient strategies, updaters, gradient descent and L-BFGS
//   - linear: logistic regression, linear regression and linear SVMs
//   - neural: multilayer perceptron topology, gradient and trainer
//   - dataset: labeled points, partitioning and synthetic generators
//   - preprocessing: feature standardization over partitioned data
//   - metrics: regression and classification metrics, loss curve plots
//   - core/linalg: dense and sparse vectors on top of gonum
//   - core/model: fitted state and exportable model weights
//   - core/parallel: batch parallelism helpers
//   - pkg/errors, pkg/log: structured errors and zerolog based logging
//
// The optml command in cmd/optml runs the bundled training scenarios.
package optml
