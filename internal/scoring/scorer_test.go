package scoring

import (
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vitalguard/vitalguard/internal/vitals"
)

var (
	trainOnce  sync.Once
	defaultArt *Artifact
)

// testArtifact trains the default artifact once and shares it across tests —
// training is deterministic, so sharing is safe.
func testArtifact(t *testing.T) *Artifact {
	t.Helper()
	trainOnce.Do(func() { defaultArt = TrainDefault() })
	return defaultArt
}

func testScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(testArtifact(t))
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

func TestScore_NormalVitals(t *testing.T) {
	s := testScorer(t)
	c, err := s.Score(vitals.FeatureVector{75, 98})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if c.Anomalous {
		t.Errorf("75 bpm / 98%% SpO2 classified anomalous (score %.4f)", c.AnomalyScore)
	}
	if c.AnomalyScore < 0 {
		t.Errorf("AnomalyScore = %.4f, want >= 0 for a normal reading", c.AnomalyScore)
	}
}

func TestScore_AnomalousVitals(t *testing.T) {
	s := testScorer(t)
	c, err := s.Score(vitals.FeatureVector{45, 85})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !c.Anomalous {
		t.Errorf("45 bpm / 85%% SpO2 classified normal (score %.4f)", c.AnomalyScore)
	}
	if c.AnomalyScore >= 0 {
		t.Errorf("AnomalyScore = %.4f, want < 0 for an anomalous reading", c.AnomalyScore)
	}
}

// The fitted threshold must separate the synthetic cluster centres: both
// outlier centres score below it, the normal centre scores above it. Without
// this the bradycardic centre (45 bpm / 85% SpO2) classifies normal and no
// alert is ever raised for it.
func TestTrainDefault_ThresholdSeparatesClusters(t *testing.T) {
	art := testArtifact(t)

	score := func(hr, spo2 float64) float64 {
		return art.Forest.scoreSample(standardize([]float64{hr, spo2}, art.Mean, art.Scale))
	}

	normal := score(75, 98)
	low := score(45, 85)
	high := score(150, 85)

	if low >= art.Offset {
		t.Errorf("low cluster centre scores %.4f, want < offset %.4f", low, art.Offset)
	}
	if high >= art.Offset {
		t.Errorf("high cluster centre scores %.4f, want < offset %.4f", high, art.Offset)
	}
	if normal <= art.Offset {
		t.Errorf("normal cluster centre scores %.4f, want > offset %.4f", normal, art.Offset)
	}
}

// The anomaly flag must agree with the sign of the score on both sides of the
// decision boundary, for every input.
func TestScore_FlagMatchesScoreSign(t *testing.T) {
	s := testScorer(t)
	for hr := 35.0; hr <= 215; hr += 15 {
		for spo2 := 72.0; spo2 <= 100; spo2 += 4 {
			c, err := s.Score(vitals.FeatureVector{hr, spo2})
			if err != nil {
				t.Fatalf("Score(%g, %g): %v", hr, spo2, err)
			}
			if c.Anomalous != (c.AnomalyScore < 0) {
				t.Errorf("Score(%g, %g): flag %v disagrees with score %.4f",
					hr, spo2, c.Anomalous, c.AnomalyScore)
			}
		}
	}
}

func TestScore_ConfidenceBounds(t *testing.T) {
	s := testScorer(t)
	c, err := s.Score(vitals.FeatureVector{45, 85})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if c.Confidence < 0 || c.Confidence > 100 {
		t.Errorf("Confidence = %.2f, want within [0, 100]", c.Confidence)
	}
	want := math.Min(math.Abs(c.AnomalyScore)*100, 100)
	if c.Confidence != want {
		t.Errorf("Confidence = %.4f, want %.4f", c.Confidence, want)
	}
}

func TestScore_ShapeMismatch(t *testing.T) {
	s := testScorer(t)
	_, err := s.Score(vitals.FeatureVector{75})
	var serr *ShapeError
	if !errors.As(err, &serr) {
		t.Fatalf("got %v, want *ShapeError", err)
	}
	if serr.Got != 1 || serr.Want != 2 {
		t.Errorf("ShapeError = %+v, want Got=1 Want=2", serr)
	}
}

func TestNewScorer_ManifestMismatch(t *testing.T) {
	art := *testArtifact(t)
	art.FeatureNames = []string{"blood_oxygen", "heart_rate"} // wrong order
	_, err := NewScorer(&art)
	var merr *ManifestError
	if !errors.As(err, &merr) {
		t.Fatalf("got %v, want *ManifestError", err)
	}
}

func TestArtifact_SaveLoadRoundTrip(t *testing.T) {
	art := testArtifact(t)
	path := filepath.Join(t.TempDir(), "models", "anomaly_model.json")

	if err := art.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	s1, _ := NewScorer(art)
	s2, err := NewScorer(loaded)
	if err != nil {
		t.Fatalf("NewScorer(loaded): %v", err)
	}

	for _, vec := range []vitals.FeatureVector{{75, 98}, {45, 85}, {120, 92}} {
		c1, _ := s1.Score(vec)
		c2, err := s2.Score(vec)
		if err != nil {
			t.Fatalf("Score after reload: %v", err)
		}
		if c1 != c2 {
			t.Errorf("Score(%v) diverged after reload: %+v vs %+v", vec, c1, c2)
		}
	}
}

func TestLoadOrTrain_FallsBackThenLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anomaly_model.json")

	a1, trained, err := LoadOrTrain(path)
	if err != nil {
		t.Fatalf("LoadOrTrain (missing): %v", err)
	}
	if !trained {
		t.Error("first LoadOrTrain should have trained a fallback model")
	}

	a2, trained, err := LoadOrTrain(path)
	if err != nil {
		t.Fatalf("LoadOrTrain (existing): %v", err)
	}
	if trained {
		t.Error("second LoadOrTrain should have loaded the saved artifact")
	}
	if a2.Offset != a1.Offset {
		t.Errorf("reloaded offset %.6f != trained offset %.6f", a2.Offset, a1.Offset)
	}
}

func TestLoad_RejectsBadVersion(t *testing.T) {
	art := *testArtifact(t)
	art.Version = 99
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := art.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted an artifact with an unsupported version")
	}
}
