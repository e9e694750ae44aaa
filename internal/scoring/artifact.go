package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ArtifactVersion is the current on-disk artifact format version.
// Load rejects artifacts written by an incompatible version.
const ArtifactVersion = 1

// Artifact is the opaque, versioned scoring blob: a fitted standardizer
// (per-feature mean and scale), a fitted isolation forest, the contamination
// offset, and the ordered feature-name manifest recorded at fit time.
type Artifact struct {
	Version      int       `json:"version"`
	TrainedAt    time.Time `json:"trained_at"`
	FeatureNames []string  `json:"feature_names"`

	// Standardizer parameters, one entry per feature.
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`

	// Offset is the fitted decision threshold: the contamination quantile of
	// the training scores, anchored between the normal and outlier cluster
	// centres. decision(x) = scoreSample(x) - Offset; negative means anomalous.
	Offset float64 `json:"offset"`

	Forest *forest `json:"forest"`
}

// Load reads and validates an artifact file.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scoring: read artifact %q: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("scoring: parse artifact %q: %w", path, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("scoring: artifact %q: %w", path, err)
	}
	return &a, nil
}

// Save writes the artifact to path, creating parent directories as needed.
func (a *Artifact) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("scoring: create artifact dir: %w", err)
		}
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("scoring: encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("scoring: write artifact %q: %w", path, err)
	}
	return nil
}

func (a *Artifact) validate() error {
	if a.Version != ArtifactVersion {
		return fmt.Errorf("unsupported version %d (want %d)", a.Version, ArtifactVersion)
	}
	n := len(a.FeatureNames)
	if n == 0 {
		return fmt.Errorf("feature manifest is empty")
	}
	if len(a.Mean) != n || len(a.Scale) != n {
		return fmt.Errorf("standardizer shape %d/%d does not match %d features",
			len(a.Mean), len(a.Scale), n)
	}
	for i, s := range a.Scale {
		if s <= 0 {
			return fmt.Errorf("scale[%d] = %g must be positive", i, s)
		}
	}
	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return fmt.Errorf("forest is empty")
	}
	return nil
}

// LoadOrTrain loads the artifact at path, or — when the file does not exist or
// fails to load — trains the default model from the synthetic distribution and
// saves it to path. The returned bool reports whether a fallback training run
// happened. A save failure after fallback training is logged, not fatal: the
// in-memory artifact is still usable.
func LoadOrTrain(path string) (*Artifact, bool, error) {
	a, err := Load(path)
	if err == nil {
		slog.Info("scoring: artifact loaded", "path", path, "trained_at", a.TrainedAt)
		return a, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("scoring: artifact unusable, retraining from synthetic data",
			"path", path, "err", err)
	} else {
		slog.Warn("scoring: no artifact found, training default model from synthetic data",
			"path", path)
	}

	a = TrainDefault()
	if saveErr := a.Save(path); saveErr != nil {
		slog.Error("scoring: could not persist trained artifact", "err", saveErr)
	}
	return a, true, nil
}
