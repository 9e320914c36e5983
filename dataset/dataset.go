// Package dataset holds labeled examples split into partitions, the unit of
// parallel work for the optimizers.
package dataset

import (
	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

// LabeledPoint is a single training example.
type LabeledPoint struct {
	Label    float64
	Features linalg.Vector
}

// NewLabeledPoint builds a point with dense features.
func NewLabeledPoint(label float64, features ...float64) LabeledPoint {
	return LabeledPoint{Label: label, Features: linalg.NewDense(features)}
}

// Partitioned is a dataset split into independently processed partitions.
// Partitions are read concurrently and must not be mutated during training.
type Partitioned [][]LabeledPoint

// Partition splits points into n contiguous partitions of near-equal size.
// Empty trailing partitions are dropped when n exceeds len(points).
func Partition(points []LabeledPoint, n int) (Partitioned, error) {
	if n <= 0 {
		return nil, errors.NewValidationError("partitions", "must be positive", n)
	}
	if len(points) == 0 {
		return nil, errors.NewModelError("dataset.Partition", "empty data", errors.ErrEmptyData)
	}
	if n > len(points) {
		n = len(points)
	}
	parts := make(Partitioned, 0, n)
	size, rem := len(points)/n, len(points)%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		parts = append(parts, points[start:end])
		start = end
	}
	return parts, nil
}

// NumPoints returns the total number of examples.
func (p Partitioned) NumPoints() int {
	n := 0
	for _, part := range p {
		n += len(part)
	}
	return n
}

// NumFeatures returns the feature dimension of the first example, or 0 when empty.
func (p Partitioned) NumFeatures() int {
	for _, part := range p {
		if len(part) > 0 {
			return part[0].Features.Len()
		}
	}
	return 0
}

// Points flattens the partitions in order.
func (p Partitioned) Points() []LabeledPoint {
	out := make([]LabeledPoint, 0, p.NumPoints())
	for _, part := range p {
		out = append(out, part...)
	}
	return out
}

// Map returns a new dataset with fn applied to every point, keeping the partitioning.
func (p Partitioned) Map(fn func(LabeledPoint) LabeledPoint) Partitioned {
	out := make(Partitioned, len(p))
	for i, part := range p {
		mapped := make([]LabeledPoint, len(part))
		for j, pt := range part {
			mapped[j] = fn(pt)
		}
		out[i] = mapped
	}
	return out
}
