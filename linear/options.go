package linear

import (
	"github.com/YuminosukeSato/optml/optimization"
	"github.com/YuminosukeSato/optml/pkg/log"
)

// config holds the settings shared by every generalized linear algorithm.
type config struct {
	intercept     bool
	numClasses    int
	validateData  bool
	scaleFeatures bool
	updater       optimization.Updater
	optimizerOpts []optimization.Option
	logger        log.Logger
}

func defaultConfig() config {
	return config{
		intercept:    false,
		numClasses:   2,
		validateData: true,
	}
}

// Option is a function that configures an Algorithm.
type Option func(*config)

// WithIntercept sets whether a bias feature is appended and an intercept learned.
func WithIntercept(intercept bool) Option {
	return func(c *config) {
		c.intercept = intercept
	}
}

// WithNumClasses sets the number of classes of a logistic regression.
// Values above 2 select the multinomial model with class 0 as pivot.
func WithNumClasses(k int) Option {
	return func(c *config) {
		c.numClasses = k
	}
}

// WithValidation toggles label validation before training.
func WithValidation(validate bool) Option {
	return func(c *config) {
		c.validateData = validate
	}
}

// WithFeatureScaling trains on features divided by their standard deviation
// and reports weights in the original feature space. Features are not centered,
// so sparse inputs stay sparse. Regularization applies to the scaled weights.
func WithFeatureScaling(scale bool) Option {
	return func(c *config) {
		c.scaleFeatures = scale
	}
}

// WithUpdater overrides the update rule of SGD based algorithms.
func WithUpdater(u optimization.Updater) Option {
	return func(c *config) {
		c.updater = u
	}
}

// WithOptimizerOptions passes options through to the underlying optimizer.
func WithOptimizerOptions(opts ...optimization.Option) Option {
	return func(c *config) {
		c.optimizerOpts = append(c.optimizerOpts, opts...)
	}
}

// WithLogger sets the logger of the algorithm and its optimizer.
func WithLogger(l log.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
