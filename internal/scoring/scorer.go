package scoring

import (
	"fmt"
	"math"

	"github.com/vitalguard/vitalguard/internal/vitals"
)

// Classification is the scorer's verdict on one feature vector.
type Classification struct {
	// AnomalyScore is the model's decision value. More negative = more
	// anomalous; the sign boundary is the fitted contamination threshold.
	AnomalyScore float64 `json:"anomaly_score"`

	// Anomalous is true when AnomalyScore < 0.
	Anomalous bool `json:"is_anomaly"`

	// Confidence is min(|AnomalyScore|·100, 100), in [0, 100].
	// A display heuristic — not a probability.
	Confidence float64 `json:"confidence"`
}

// ShapeError reports a feature vector whose length does not match the fitted
// feature count. The pipeline treats it as non-fatal for the reading.
type ShapeError struct {
	Got, Want int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("scoring: feature vector has %d features, model was fit with %d", e.Got, e.Want)
}

// ManifestError reports a loaded artifact whose feature manifest does not
// match the order the normalizer emits. This is a configuration error and
// aborts startup.
type ManifestError struct {
	Got, Want []string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("scoring: artifact feature manifest %v does not match expected %v", e.Got, e.Want)
}

// Scorer classifies feature vectors against an immutable fitted artifact.
// Safe for concurrent use.
type Scorer struct {
	art *Artifact
}

// NewScorer wraps art, verifying its feature manifest matches the order the
// vitals normalizer produces.
func NewScorer(art *Artifact) (*Scorer, error) {
	if len(art.FeatureNames) != len(vitals.FeatureNames) {
		return nil, &ManifestError{Got: art.FeatureNames, Want: vitals.FeatureNames}
	}
	for i, name := range art.FeatureNames {
		if name != vitals.FeatureNames[i] {
			return nil, &ManifestError{Got: art.FeatureNames, Want: vitals.FeatureNames}
		}
	}
	return &Scorer{art: art}, nil
}

// Score classifies one feature vector. It returns a ShapeError when the
// vector's length does not match the fitted feature count.
func (s *Scorer) Score(vec vitals.FeatureVector) (Classification, error) {
	want := len(s.art.FeatureNames)
	if len(vec) != want {
		return Classification{}, &ShapeError{Got: len(vec), Want: want}
	}

	scaled := standardize(vec, s.art.Mean, s.art.Scale)
	decision := s.art.Forest.scoreSample(scaled) - s.art.Offset

	return Classification{
		AnomalyScore: decision,
		Anomalous:    decision < 0,
		Confidence:   math.Min(math.Abs(decision)*100, 100),
	}, nil
}
