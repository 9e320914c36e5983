package model

import (
	"encoding/json"
	"io"

	"github.com/YuminosukeSato/optml/pkg/errors"
)

// WeightsVersion is the format version written by ExportWeights.
const WeightsVersion = "1"

// ModelWeights はモデルの重みを表す構造体（シリアライゼーション用）
type ModelWeights struct {
	// ModelType はモデルの種類（LogisticRegressionWithSGD 等）
	ModelType string `json:"model_type"`

	// Version はフォーマットのバージョン（互換性チェック用）
	Version string `json:"version"`

	// Coefficients は重み係数。多クラスの場合は非ピボットクラスごとのブロックを連結したもの
	Coefficients []float64 `json:"coefficients"`

	// Intercept は切片（二値・回帰モデルのみ）
	Intercept float64 `json:"intercept"`

	// NumClasses はクラス数（回帰モデルでは0）
	NumClasses int `json:"num_classes,omitempty"`

	// Threshold は二値分類の閾値。nil の場合はスコアをそのまま返す
	Threshold *float64 `json:"threshold,omitempty"`

	// Hyperparameters は学習時のハイパーパラメータ
	Hyperparameters map[string]interface{} `json:"hyperparameters,omitempty"`

	// State は学習状態
	State State `json:"state"`
}

// Encode writes mw as indented JSON.
func (mw *ModelWeights) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(mw); err != nil {
		return errors.Wrap(err, "optml: encode model weights")
	}
	return nil
}

// DecodeWeights reads and validates ModelWeights from r.
func DecodeWeights(r io.Reader) (*ModelWeights, error) {
	var mw ModelWeights
	if err := json.NewDecoder(r).Decode(&mw); err != nil {
		return nil, errors.Wrap(err, "optml: decode model weights")
	}
	if err := mw.Validate(); err != nil {
		return nil, err
	}
	return &mw, nil
}

// Validate はModelWeightsの妥当性を検証
func (mw *ModelWeights) Validate() error {
	if mw.ModelType == "" {
		return errors.NewValidationError("model_type", "is required", mw.ModelType)
	}
	if mw.Version != WeightsVersion {
		return errors.NewValidationError("version", "unsupported weights version", mw.Version)
	}
	if !mw.State.Fitted && len(mw.Coefficients) > 0 {
		return errors.NewValidationError("coefficients", "unfitted model should not have coefficients", len(mw.Coefficients))
	}
	if mw.State.Fitted && len(mw.Coefficients) == 0 {
		return errors.NewValidationError("coefficients", "fitted model must have coefficients", 0)
	}
	return nil
}

// Clone はModelWeightsのディープコピーを作成
func (mw *ModelWeights) Clone() *ModelWeights {
	clone := *mw
	clone.Coefficients = append([]float64(nil), mw.Coefficients...)
	if mw.Threshold != nil {
		t := *mw.Threshold
		clone.Threshold = &t
	}
	if mw.Hyperparameters != nil {
		clone.Hyperparameters = make(map[string]interface{}, len(mw.Hyperparameters))
		for k, v := range mw.Hyperparameters {
			clone.Hyperparameters[k] = v
		}
	}
	return &clone
}
