package optimization

import (
	"github.com/YuminosukeSato/optml/pkg/errors"
	"github.com/YuminosukeSato/optml/pkg/log"
)

// Config holds optimizer hyperparameters.
type Config struct {
	StepSize          float64
	NumIterations     int
	RegParam          float64
	MiniBatchFraction float64
	ConvergenceTol    float64
	NumCorrections    int
	Seed              uint64
	Parallelism       int
	Logger            log.Logger
}

// DefaultGradientDescentConfig returns the gradient descent defaults.
func DefaultGradientDescentConfig() Config {
	return Config{
		StepSize:          1.0,
		NumIterations:     100,
		RegParam:          0.0,
		MiniBatchFraction: 1.0,
		ConvergenceTol:    0.001,
		Seed:              42,
	}
}

// DefaultLBFGSConfig returns the L-BFGS defaults.
func DefaultLBFGSConfig() Config {
	return Config{
		NumIterations:     100,
		RegParam:          0.0,
		MiniBatchFraction: 1.0,
		ConvergenceTol:    1e-6,
		NumCorrections:    10,
	}
}

// Option configures an optimizer.
type Option func(*Config)

// WithStepSize sets the initial step size.
func WithStepSize(step float64) Option {
	return func(c *Config) { c.StepSize = step }
}

// WithNumIterations sets the maximum number of iterations.
func WithNumIterations(n int) Option {
	return func(c *Config) { c.NumIterations = n }
}

// WithRegParam sets the regularization strength.
func WithRegParam(reg float64) Option {
	return func(c *Config) { c.RegParam = reg }
}

// WithMiniBatchFraction sets the fraction of each partition sampled per iteration.
func WithMiniBatchFraction(f float64) Option {
	return func(c *Config) { c.MiniBatchFraction = f }
}

// WithConvergenceTol sets the convergence tolerance. Zero disables the check.
func WithConvergenceTol(tol float64) Option {
	return func(c *Config) { c.ConvergenceTol = tol }
}

// WithNumCorrections sets the L-BFGS history size.
func WithNumCorrections(n int) Option {
	return func(c *Config) { c.NumCorrections = n }
}

// WithSeed sets the mini-batch sampling seed.
func WithSeed(seed uint64) Option {
	return func(c *Config) { c.Seed = seed }
}

// WithParallelism bounds the number of partitions processed at once. Zero means unbounded.
func WithParallelism(n int) Option {
	return func(c *Config) { c.Parallelism = n }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func (c *Config) validate() error {
	switch {
	case c.StepSize < 0:
		return errors.NewValidationError("stepSize", "must be non-negative", c.StepSize)
	case c.NumIterations < 0:
		return errors.NewValidationError("numIterations", "must be non-negative", c.NumIterations)
	case c.RegParam < 0:
		return errors.NewValidationError("regParam", "must be non-negative", c.RegParam)
	case c.MiniBatchFraction <= 0 || c.MiniBatchFraction > 1:
		return errors.NewValidationError("miniBatchFraction", "must be in (0, 1]", c.MiniBatchFraction)
	case c.ConvergenceTol < 0 || c.ConvergenceTol > 1:
		return errors.NewValidationError("convergenceTol", "must be in [0, 1]", c.ConvergenceTol)
	case c.NumCorrections < 0:
		return errors.NewValidationError("numCorrections", "must be non-negative", c.NumCorrections)
	case c.Parallelism < 0:
		return errors.NewValidationError("parallelism", "must be non-negative", c.Parallelism)
	}
	return nil
}
