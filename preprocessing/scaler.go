// Package preprocessing rescales features of partitioned datasets.
package preprocessing

import (
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/YuminosukeSato/optml/core/linalg"
	"github.com/YuminosukeSato/optml/core/model"
	"github.com/YuminosukeSato/optml/dataset"
	"github.com/YuminosukeSato/optml/pkg/errors"
)

// StandardScaler は各特徴量を平均0、標準偏差1に変換する
// WithMean を無効にすると疎ベクトルは疎のまま変換される
type StandardScaler struct {
	*model.StateManager

	// Mean は各特徴量の平均値
	Mean []float64

	// Scale は各特徴量の標準偏差（分散0の特徴量は1）
	Scale []float64

	// WithMean は平均を引くかどうか
	WithMean bool

	// WithStd は標準偏差で割るかどうか
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
//
// 使用例:
//
//	scaler := preprocessing.NewStandardScaler(false, true)
//	if err := scaler.Fit(data); err != nil { ... }
//	scaled, err := scaler.TransformData(data)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		StateManager: model.NewStateManager("StandardScaler"),
		WithMean:     withMean,
		WithStd:      withStd,
	}
}

// moments are per-partition column sums.
type moments struct {
	n     int
	sum   []float64
	sumSq []float64
}

// Fit は訓練データから平均と標準偏差を計算する
// パーティションごとに並列に集計し、パーティション順に合算する
func (s *StandardScaler) Fit(data dataset.Partitioned) error {
	n := data.NumPoints()
	d := data.NumFeatures()
	if n == 0 || d == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	parts := make([]moments, len(data))
	var g errgroup.Group
	for p, part := range data {
		g.Go(func() error {
			return errors.SafeExecute(fmt.Sprintf("StandardScaler.Fit partition %d", p), func() error {
				m := moments{sum: make([]float64, d), sumSq: make([]float64, d)}
				for i, pt := range part {
					if pt.Features.Len() != d {
						return errors.Wrapf(errors.NewDimensionError("StandardScaler.Fit", d, pt.Features.Len(), 1), "partition %d point %d", p, i)
					}
					pt.Features.DoNonZero(func(j int, v float64) {
						m.sum[j] += v
						m.sumSq[j] += v * v
					})
					m.n++
				}
				parts[p] = m
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sum := make([]float64, d)
	sumSq := make([]float64, d)
	for _, m := range parts {
		for j := 0; j < d; j++ {
			sum[j] += m.sum[j]
			sumSq[j] += m.sumSq[j]
		}
	}

	s.Mean = make([]float64, d)
	s.Scale = make([]float64, d)
	for j := 0; j < d; j++ {
		mean := sum[j] / float64(n)
		if s.WithMean {
			s.Mean[j] = mean
		}
		s.Scale[j] = 1.0
		if s.WithStd {
			variance := math.Max(sumSq[j]/float64(n)-mean*mean, 0)
			// 標準偏差が0に近い場合は1に設定（ゼロ除算を避ける）
			if std := math.Sqrt(variance); std >= 1e-8 {
				s.Scale[j] = std
			}
		}
	}

	s.SetFitted(d, n)
	return nil
}

// Transform は学習済みの統計情報を使って1つのベクトルを標準化する
func (s *StandardScaler) Transform(x linalg.Vector) (linalg.Vector, error) {
	if err := s.RequireFitted("Transform"); err != nil {
		return nil, err
	}
	if x.Len() != len(s.Scale) {
		return nil, errors.NewDimensionError("StandardScaler.Transform", len(s.Scale), x.Len(), 1)
	}
	return s.transform(x), nil
}

func (s *StandardScaler) transform(x linalg.Vector) linalg.Vector {
	if sp, ok := x.(*linalg.Sparse); ok && !s.WithMean {
		idx := sp.Indices()
		vals := make([]float64, len(idx))
		for k, j := range idx {
			vals[k] = sp.Values()[k] / s.Scale[j]
		}
		return linalg.NewSparse(sp.Len(), append([]int(nil), idx...), vals)
	}
	out := make([]float64, x.Len())
	for j := range out {
		out[j] = (x.AtVec(j) - s.Mean[j]) / s.Scale[j]
	}
	return linalg.NewDense(out)
}

// TransformData は全パーティションの特徴量を標準化した新しいデータセットを返す
func (s *StandardScaler) TransformData(data dataset.Partitioned) (dataset.Partitioned, error) {
	if err := s.RequireFitted("TransformData"); err != nil {
		return nil, err
	}
	d := len(s.Scale)
	for p, part := range data {
		for i, pt := range part {
			if pt.Features.Len() != d {
				return nil, errors.Wrapf(errors.NewDimensionError("StandardScaler.TransformData", d, pt.Features.Len(), 1), "partition %d point %d", p, i)
			}
		}
	}
	return data.Map(func(pt dataset.LabeledPoint) dataset.LabeledPoint {
		return dataset.LabeledPoint{Label: pt.Label, Features: s.transform(pt.Features)}
	}), nil
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	nFeatures, _ := s.Dimensions()
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)", s.WithMean, s.WithStd, nFeatures)
}
