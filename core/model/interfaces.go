package model

import "github.com/YuminosukeSato/optml/core/linalg"

// Predictor is a trained model that scores single feature vectors.
type Predictor interface {
	// Predict returns the prediction for x.
	Predict(x linalg.Vector) (float64, error)
}

// WeightsExporter is a model whose parameters can be exported and restored.
type WeightsExporter interface {
	ExportWeights() (*ModelWeights, error)
	ImportWeights(mw *ModelWeights) error
}
