// Package log provides a structured logging interface for optml training runs.
//
// The interface is slog-shaped (message plus alternating key/value fields) and
// is backed by zerolog in production. Optimizers and trainers log per-iteration
// loss, partition fan-out and convergence under the keys defined in attributes.go.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("optimization").With(
//	    log.RunIDKey, runID,
//	    log.ModelNameKey, "LogisticRegressionWithSGD",
//	)
//	logger.Info("Training started",
//	    log.SamplesKey, 10000,
//	    log.PartitionsKey, 4,
//	)

package log

import (
	"context"
)

// Logger is the structured logger used across optml. Fields alternate keys
// and values; Error treats a leading error value as the error field and
// attaches its stack.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a child logger that adds fields to every record,
	// e.g. the run id of one optimizer call.
	With(fields ...any) Logger

	// Enabled reports whether records at level are emitted. Use it to skip
	// formatting weight vectors at debug level.
	Enabled(ctx context.Context, level Level) bool
}

// Level is a logging level. Values match slog.Level.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider hands out loggers for components. Tests swap in a
// TestLoggerProvider through SetProvider.
type LoggerProvider interface {
	GetLogger() Logger
	// GetLoggerWithName tags the logger with the component name (ml.component).
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
