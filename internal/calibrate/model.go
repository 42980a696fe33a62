package calibrate

import (
	"math"
	"time"
)

// Model is the linear calibration model: a weighted sum of the feature
// vector squashed through a logistic function.
type Model struct {
	Weights      [FeatureCount]float64 `json:"weights"`
	Bias         float64               `json:"bias"`
	LearningRate float64               `json:"learning_rate"`
	Version      int                   `json:"version"`
	SampleCount  int                   `json:"sample_count"`
	LastTrained  time.Time             `json:"last_trained"`
	MSE          float64               `json:"mse"`
	Accuracy     float64               `json:"accuracy"`
}

// NewModel returns the prior model used before any training has happened.
// The prior weights encode which features matter most: raw confidence and
// source agreement dominate, the quality estimates refine.
func NewModel() Model {
	return Model{
		Weights:      [FeatureCount]float64{0.3, 0.2, 0.15, 0.1, 0.1, 0.05, 0.05, 0.05},
		Bias:         0.5,
		LearningRate: 0.01,
	}
}

// Predict scores a feature vector in (0,1).
func (m *Model) Predict(x [FeatureCount]float64) float64 {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return sigmoid(z)
}

// Learn applies one SGD step toward the labeled sample.
func (m *Model) Learn(x [FeatureCount]float64, label float64) {
	err := label - m.Predict(x)
	for i := range m.Weights {
		m.Weights[i] += m.LearningRate * err * x[i]
	}
	m.Bias += m.LearningRate * err
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Sample is one labeled training example for the calibration model.
type Sample struct {
	DocumentID string                `json:"document_id"`
	Features   [FeatureCount]float64 `json:"features"`
	Label      float64               `json:"label"`
	Kind       string                `json:"kind"` // "consensus" or "correction"
	RecordedAt time.Time             `json:"recorded_at"`
}

// valid rejects malformed samples before they can reach the weights.
func (s Sample) valid() bool {
	if math.IsNaN(s.Label) || s.Label < 0 || s.Label > 1 {
		return false
	}
	for _, f := range s.Features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
