package optimization

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/pkg/errors"
	"github.com/YuminosukeSato/optml/pkg/log"
)

// LBFGS minimizes the full-batch average loss plus ½·regParam·||w||² with
// gonum's limited-memory BFGS.
type LBFGS struct {
	gradient Gradient
	cfg      Config
	logger   log.Logger
}

// NewLBFGS creates an LBFGS optimizer.
func NewLBFGS(gradient Gradient, opts ...Option) (*LBFGS, error) {
	if gradient == nil {
		return nil, errors.NewValidationError("gradient", "must not be nil", nil)
	}
	cfg := DefaultLBFGSConfig()
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
	return &LBFGS{gradient: gradient, cfg: cfg, logger: logger}, nil
}

// Config returns the effective configuration.
func (l *LBFGS) Config() Config { return l.cfg }

// costFunction evaluates loss and gradient together and caches the last
// location, since gonum asks for Func and Grad at the same x separately.
type costFunction struct {
	ctx      context.Context
	gradient Gradient
	data     dataset.Partitioned
	regParam float64
	limit    int

	mu    sync.Mutex
	lastX []float64
	loss  float64
	grad  []float64
	err   error
}

func (c *costFunction) evaluate(x []float64) (float64, []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastX != nil && floats.Equal(c.lastX, x) {
		return c.loss, c.grad
	}
	loss, grad, err := c.pass(x)
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		// gonum stops at the next Status check
		nan := make([]float64, len(x))
		for i := range nan {
			nan[i] = loss
		}
		return loss, nan
	}
	c.lastX = append(c.lastX[:0], x...)
	c.loss, c.grad = loss, grad
	return loss, grad
}

// pass computes the regularized average loss and gradient at x in parallel.
func (c *costFunction) pass(x []float64) (float64, []float64, error) {
	w := mat.NewVecDense(len(x), append([]float64(nil), x...))
	results := make([]batchSum, len(c.data))

	g, _ := errgroup.WithContext(c.ctx)
	if c.limit > 0 {
		g.SetLimit(c.limit)
	}
	for p, part := range c.data {
		g.Go(func() error {
			return errors.SafeExecute(fmt.Sprintf("partition %d", p), func() error {
				sum := batchSum{grad: mat.NewVecDense(w.Len(), nil)}
				for _, pt := range part {
					sum.loss += c.gradient.ComputeInto(pt.Features, pt.Label, w, sum.grad)
					sum.count++
				}
				results[p] = sum
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return math.NaN(), nil, err
	}

	grad := make([]float64, len(x))
	loss, count := 0.0, 0
	for _, r := range results {
		floats.Add(grad, r.grad.RawVector().Data)
		loss += r.loss
		count += r.count
	}
	inv := 1 / float64(count)
	floats.Scale(inv, grad)
	loss *= inv

	if c.regParam > 0 {
		norm := floats.Norm(x, 2)
		loss += 0.5 * c.regParam * norm * norm
		floats.AddScaled(grad, c.regParam, x)
	}
	return loss, grad, nil
}

func (c *costFunction) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// historyRecorder appends the objective at every major iteration.
type historyRecorder struct {
	ctx     context.Context
	history []float64
	logger  log.Logger
}

func (r *historyRecorder) Init() error { return nil }

func (r *historyRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op == optimize.MajorIteration {
		r.history = append(r.history, loc.F)
		r.logger.Debug("Iteration finished",
			log.IterationKey, stats.MajorIterations,
			log.LossKey, loc.F,
		)
	}
	return r.ctx.Err()
}

// Optimize implements Optimizer. Reaching the iteration limit is not an error.
func (l *LBFGS) Optimize(ctx context.Context, data dataset.Partitioned, initialWeights *mat.VecDense) (weights *mat.VecDense, lossHistory []float64, err error) {
	defer errors.Recover(&err, "LBFGS.Optimize")

	if data.NumPoints() == 0 {
		return nil, nil, errors.NewModelError("LBFGS.Optimize", "empty data", errors.ErrEmptyData)
	}
	if initialWeights == nil {
		return nil, nil, errors.NewValidationError("initialWeights", "must not be nil", nil)
	}

	logger := l.logger.With(log.RunIDKey, uuid.NewString(), log.ModelNameKey, "LBFGS")
	logger.Info("Optimization started",
		log.SamplesKey, data.NumPoints(),
		log.PartitionsKey, len(data),
		log.RegularizationKey, l.cfg.RegParam,
		log.ToleranceKey, l.cfg.ConvergenceTol,
	)
	start := time.Now()

	cost := &costFunction{
		ctx:      ctx,
		gradient: l.gradient,
		data:     data,
		regParam: l.cfg.RegParam,
		limit:    l.cfg.Parallelism,
	}
	x0 := mat.VecDenseCopyOf(initialWeights).RawVector().Data

	// The first evaluation runs on this goroutine so that precondition
	// failures surface before gonum starts its workers.
	f0, g0, err := cost.pass(x0)
	if err != nil {
		return nil, nil, err
	}
	if err := errors.CheckScalar("loss", f0, 0); err != nil {
		return nil, nil, err
	}
	if l.cfg.NumIterations == 0 {
		return mat.NewVecDense(len(x0), x0), []float64{f0}, nil
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			f, _ := cost.evaluate(x)
			return f
		},
		Grad: func(grad, x []float64) {
			_, g := cost.evaluate(x)
			copy(grad, g)
		},
		Status: func() (optimize.Status, error) {
			if err := cost.failure(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	// the starting location is reported as the first major iteration
	recorder := &historyRecorder{ctx: ctx, logger: logger}
	settings := &optimize.Settings{
		InitValues:      &optimize.Location{F: f0, Gradient: g0},
		MajorIterations: l.cfg.NumIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   l.cfg.ConvergenceTol,
			Iterations: 5,
		},
		Recorder: recorder,
	}
	method := &optimize.LBFGS{Store: l.cfg.NumCorrections}

	result, err := optimize.Minimize(problem, x0, settings, method)
	if ferr := cost.failure(); ferr != nil {
		logger.Error("Gradient pass failed", ferr)
		return nil, recorder.history, ferr
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, recorder.history, errors.Wrap(cerr, "LBFGS.Optimize")
	}
	if result == nil {
		return nil, recorder.history, errors.NewModelError("LBFGS.Optimize", "optimization failed", err)
	}
	if err != nil {
		// line search failures near the optimum still leave a usable location
		logger.Warn("Optimizer stopped early", err, "status", result.Status.String())
	}
	if err := errors.CheckNumericalStability("weights", result.Location.X, result.Stats.MajorIterations); err != nil {
		return nil, recorder.history, err
	}

	logger.Info("Optimization finished",
		log.IterationKey, result.Stats.MajorIterations,
		log.LossKey, result.Location.F,
		"status", result.Status.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return mat.NewVecDense(len(result.Location.X), result.Location.X), recorder.history, nil
}
