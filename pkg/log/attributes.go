// Standard attribute keys for optimizer and trainer logs.
//
// Keys follow a hierarchical naming convention ("model.name", "data.samples")
// so that runs can be filtered and correlated by downstream log tooling.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the model or algorithm being trained.
	// Examples: "LogisticRegressionWithSGD", "MultilayerPerceptron"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging.
	// Examples: "optimization", "linear", "neural"
	ComponentKey = "ml.component"

	// RunIDKey correlates all log lines of a single optimizer run.
	RunIDKey = "run.id"

	// OptimizerKey names the optimizer driving a trainer ("sgd", "lbfgs").
	OptimizerKey = "ml.optimizer"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of examples seen by an operation.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the feature dimension.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of classes of a classifier.
	ClassesKey = "data.classes"

	// PartitionsKey indicates how many partitions the dataset is split into.
	PartitionsKey = "data.partitions"

	// PartitionKey identifies a single partition.
	PartitionKey = "data.partition"

	// BatchSizeKey indicates the size of a sampled mini-batch.
	BatchSizeKey = "data.batch_size"

	// LayersKey records the layer widths of a network topology.
	LayersKey = "model.layers"
)

// Training Progress and Metrics
const (
	// IterationKey records the current iteration number.
	IterationKey = "training.iteration"

	// PassKey records the current pass over the data.
	PassKey = "training.pass"

	// LossKey records the loss value of an iteration.
	LossKey = "metrics.loss"

	// AccuracyKey records classification accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// WeightDeltaKey records the norm of the weight change between iterations.
	WeightDeltaKey = "metrics.weight_delta"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Hyperparameters and Configuration
const (
	// LearningRateKey records the step size.
	LearningRateKey = "hyperparams.learning_rate"

	// RegularizationKey records regularization strength.
	RegularizationKey = "hyperparams.regularization"

	// MiniBatchFractionKey records the sampled fraction of each partition.
	MiniBatchFractionKey = "hyperparams.mini_batch_fraction"

	// ToleranceKey records the convergence tolerance.
	ToleranceKey = "hyperparams.convergence_tol"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error Context
const (
	// ErrorKey carries the error value itself.
	ErrorKey = "error"

	// StacktraceKey contains stack trace information for debugging.
	// Populated from cockroachdb/errors safe details.
	StacktraceKey = "error.stacktrace"

	// WarningKey carries a structured warning object.
	WarningKey = "warning"
)

// Standard attribute values.
const (
	OperationTrain    = "train"
	OperationPredict  = "predict"
	OperationOptimize = "optimize"
)
