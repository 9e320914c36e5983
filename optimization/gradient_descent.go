package optimization

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/pkg/errors"
	"github.com/YuminosukeSato/optml/pkg/log"
)

// Optimizer minimizes the average loss of a Gradient over a dataset.
type Optimizer interface {
	// Optimize returns the final weights and the loss of each iteration.
	Optimize(ctx context.Context, data dataset.Partitioned, initialWeights *mat.VecDense) (*mat.VecDense, []float64, error)
}

// GradientDescent is mini-batch stochastic gradient descent over partitions.
//
// Every iteration each partition samples its mini-batch and sums example
// gradients into a private buffer in its own goroutine. The partition sums
// are added in partition order, averaged over the batch and handed to the
// Updater.
type GradientDescent struct {
	gradient Gradient
	updater  Updater
	cfg      Config
	logger   log.Logger
}

// NewGradientDescent creates a GradientDescent. Invalid options are reported
// as a ValidationError.
func NewGradientDescent(gradient Gradient, updater Updater, opts ...Option) (*GradientDescent, error) {
	if gradient == nil {
		return nil, errors.NewValidationError("gradient", "must not be nil", nil)
	}
	if updater == nil {
		return nil, errors.NewValidationError("updater", "must not be nil", nil)
	}
	cfg := DefaultGradientDescentConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLoggerWithName("optimization")
	}
	return &GradientDescent{gradient: gradient, updater: updater, cfg: cfg, logger: logger}, nil
}

// Config returns the effective configuration.
func (gd *GradientDescent) Config() Config { return gd.cfg }

// batchSum is the result of one partition pass, or of all of them merged.
type batchSum struct {
	grad  *mat.VecDense
	loss  float64
	count int
}

// Optimize implements Optimizer.
func (gd *GradientDescent) Optimize(ctx context.Context, data dataset.Partitioned, initialWeights *mat.VecDense) (weights *mat.VecDense, lossHistory []float64, err error) {
	defer errors.Recover(&err, "GradientDescent.Optimize")

	if data.NumPoints() == 0 {
		return nil, nil, errors.NewModelError("GradientDescent.Optimize", "empty data", errors.ErrEmptyData)
	}
	if initialWeights == nil {
		return nil, nil, errors.NewValidationError("initialWeights", "must not be nil", nil)
	}

	runID := uuid.NewString()
	logger := gd.logger.With(log.RunIDKey, runID, log.ModelNameKey, "GradientDescent")
	logger.Info("Optimization started",
		log.SamplesKey, data.NumPoints(),
		log.PartitionsKey, len(data),
		log.LearningRateKey, gd.cfg.StepSize,
		log.RegularizationKey, gd.cfg.RegParam,
		log.MiniBatchFractionKey, gd.cfg.MiniBatchFraction,
		log.RandomSeedKey, gd.cfg.Seed,
	)
	start := time.Now()

	w := mat.VecDenseCopyOf(initialWeights)
	// regularization value of the initial weights
	_, regVal := gd.updater.Compute(w, mat.NewVecDense(w.Len(), nil), 0, 1, gd.cfg.RegParam)

	lossHistory = make([]float64, 0, gd.cfg.NumIterations)
	converged := false
	updates := 0
	lastDelta := 0.0

	for i := 1; i <= gd.cfg.NumIterations && !converged; i++ {
		if err := ctx.Err(); err != nil {
			return nil, lossHistory, errors.Wrapf(err, "GradientDescent.Optimize: iteration %d", i)
		}

		sum, err := gd.aggregate(ctx, data, w, i)
		if err != nil {
			logger.Error("Gradient pass failed", err, log.IterationKey, i)
			return nil, lossHistory, err
		}
		if sum.count == 0 {
			logger.Warn("Empty mini-batch, skipping update",
				log.WarningKey, errors.NewEmptyBatchWarning(i, gd.cfg.MiniBatchFraction))
			continue
		}

		loss := sum.loss/float64(sum.count) + regVal
		if err := errors.CheckScalar("loss", loss, i); err != nil {
			logger.Error("Loss is not finite", err, log.IterationKey, i)
			return nil, lossHistory, err
		}
		lossHistory = append(lossHistory, loss)

		sum.grad.ScaleVec(1/float64(sum.count), sum.grad)
		prev := w
		w, regVal = gd.updater.Compute(w, sum.grad, gd.cfg.StepSize, i, gd.cfg.RegParam)
		updates++

		lastDelta = weightDelta(prev, w)
		logger.Debug("Iteration finished",
			log.IterationKey, i,
			log.LossKey, loss,
			log.BatchSizeKey, sum.count,
			log.WeightDeltaKey, lastDelta,
		)

		if gd.cfg.ConvergenceTol > 0 && updates > 1 {
			converged = lastDelta < gd.cfg.ConvergenceTol*max(floats.Norm(w.RawVector().Data, 2), 1.0)
		}
	}

	if gd.cfg.ConvergenceTol > 0 && !converged && updates > 0 {
		errors.Warn(errors.NewConvergenceWarning("GradientDescent", gd.cfg.NumIterations,
			fmt.Sprintf("last weight change %.3g above tolerance %g", lastDelta, gd.cfg.ConvergenceTol)))
	}

	logger.Info("Optimization finished",
		log.IterationKey, len(lossHistory),
		log.LossKey, lastLoss(lossHistory),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return w, lossHistory, nil
}

// aggregate runs one gradient pass over every partition concurrently.
func (gd *GradientDescent) aggregate(ctx context.Context, data dataset.Partitioned, w *mat.VecDense, iter int) (batchSum, error) {
	results := make([]batchSum, len(data))

	g, _ := errgroup.WithContext(ctx)
	if gd.cfg.Parallelism > 0 {
		g.SetLimit(gd.cfg.Parallelism)
	}
	for p, part := range data {
		g.Go(func() error {
			return errors.SafeExecute(fmt.Sprintf("partition %d", p), func() error {
				results[p] = gd.partitionPass(part, w, iter, p)
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return batchSum{}, err
	}

	total := batchSum{grad: mat.NewVecDense(w.Len(), nil)}
	for _, r := range results {
		total.grad.AddVec(total.grad, r.grad)
		total.loss += r.loss
		total.count += r.count
	}
	return total, nil
}

// partitionPass samples a Bernoulli mini-batch from part and sums its gradients.
func (gd *GradientDescent) partitionPass(part []dataset.LabeledPoint, w *mat.VecDense, iter, partition int) batchSum {
	sum := batchSum{grad: mat.NewVecDense(w.Len(), nil)}
	frac := gd.cfg.MiniBatchFraction

	var rng *rand.Rand
	if frac < 1 {
		rng = rand.New(rand.NewPCG(gd.cfg.Seed+uint64(iter), uint64(partition)))
	}
	for _, pt := range part {
		if rng != nil && rng.Float64() >= frac {
			continue
		}
		sum.loss += gd.gradient.ComputeInto(pt.Features, pt.Label, w, sum.grad)
		sum.count++
	}
	return sum
}

func weightDelta(prev, cur *mat.VecDense) float64 {
	return floats.Distance(prev.RawVector().Data, cur.RawVector().Data, 2)
}

func lastLoss(history []float64) float64 {
	if len(history) == 0 {
		return 0
	}
	return history[len(history)-1]
}
