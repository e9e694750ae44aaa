package vitals

import (
	"fmt"
	"time"
)

// FeatureNames is the ordered feature manifest the scorer is fit with.
// Normalize emits features in exactly this order; a loaded scoring artifact
// whose manifest differs is rejected at startup.
var FeatureNames = []string{"heart_rate", "blood_oxygen"}

// Accepted ranges for incoming measurements. Values outside these bounds are
// rejected with a ValidationError.
const (
	HeartRateMin   = 30.0
	HeartRateMax   = 220.0
	BloodOxygenMin = 70.0
	BloodOxygenMax = 100.0

	TemperatureMin = 95.0 // °F
	TemperatureMax = 110.0

	SystolicMin  = 70.0
	SystolicMax  = 250.0
	DiastolicMin = 40.0
	DiastolicMax = 150.0
)

// FeatureVector is the fixed-order numeric encoding of a reading,
// ordered per FeatureNames.
type FeatureVector []float64

// Submission is one raw set of vital measurements for a subject, as received
// from the ingest API or a device poll. Optional fields are pointers so that
// "absent" and "zero" stay distinguishable.
type Submission struct {
	Subject     string   `json:"user_id"`
	HeartRate   float64  `json:"heart_rate"`
	BloodOxygen float64  `json:"blood_oxygen"`
	Temperature *float64 `json:"temperature,omitempty"`
	Systolic    *float64 `json:"blood_pressure_systolic,omitempty"`
	Diastolic   *float64 `json:"blood_pressure_diastolic,omitempty"`
	Activity    string   `json:"activity_level,omitempty"`
}

// Reading is one persisted, timestamped set of vital measurements.
// AnomalyScore and Anomalous are set together by the pipeline once the
// reading has been scored; Scored reports whether that happened.
type Reading struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Subject     string    `json:"user_id" gorm:"column:user_id;index"`
	Timestamp   time.Time `json:"timestamp" gorm:"index"`
	HeartRate   float64   `json:"heart_rate"`
	BloodOxygen float64   `json:"blood_oxygen"`
	Temperature *float64  `json:"temperature,omitempty"`
	Systolic    *float64  `json:"blood_pressure_systolic,omitempty" gorm:"column:blood_pressure_systolic"`
	Diastolic   *float64  `json:"blood_pressure_diastolic,omitempty" gorm:"column:blood_pressure_diastolic"`
	Activity    string    `json:"activity_level,omitempty" gorm:"column:activity_level"`

	AnomalyScore float64 `json:"anomaly_score"`
	Anomalous    bool    `json:"is_anomaly" gorm:"column:is_anomaly"`
	Scored       bool    `json:"scored"`
}

// TableName keeps the table name the original schema used.
func (Reading) TableName() string { return "health_data" }

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("vitals: invalid %s: %s", e.Field, e.Reason)
}

// Normalize validates the measurement ranges and returns the feature vector.
// The vector's length and order match FeatureNames. The subject is not
// checked here: score-only callers submit bare vitals with no subject.
func (s *Submission) Normalize() (FeatureVector, error) {
	if s.HeartRate < HeartRateMin || s.HeartRate > HeartRateMax {
		return nil, outOfRange("heart_rate", s.HeartRate, HeartRateMin, HeartRateMax)
	}
	if s.BloodOxygen < BloodOxygenMin || s.BloodOxygen > BloodOxygenMax {
		return nil, outOfRange("blood_oxygen", s.BloodOxygen, BloodOxygenMin, BloodOxygenMax)
	}
	if s.Temperature != nil && (*s.Temperature < TemperatureMin || *s.Temperature > TemperatureMax) {
		return nil, outOfRange("temperature", *s.Temperature, TemperatureMin, TemperatureMax)
	}
	if s.Systolic != nil && (*s.Systolic < SystolicMin || *s.Systolic > SystolicMax) {
		return nil, outOfRange("blood_pressure_systolic", *s.Systolic, SystolicMin, SystolicMax)
	}
	if s.Diastolic != nil && (*s.Diastolic < DiastolicMin || *s.Diastolic > DiastolicMax) {
		return nil, outOfRange("blood_pressure_diastolic", *s.Diastolic, DiastolicMin, DiastolicMax)
	}

	return FeatureVector{s.HeartRate, s.BloodOxygen}, nil
}

// Reading builds the persistable record for this submission, stamped with now.
// Scoring fields are left unset; the pipeline fills them in.
func (s *Submission) Reading(now time.Time) *Reading {
	return &Reading{
		Subject:     s.Subject,
		Timestamp:   now,
		HeartRate:   s.HeartRate,
		BloodOxygen: s.BloodOxygen,
		Temperature: s.Temperature,
		Systolic:    s.Systolic,
		Diastolic:   s.Diastolic,
		Activity:    s.Activity,
	}
}

func outOfRange(field string, v, lo, hi float64) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("%g is outside range [%g, %g]", v, lo, hi),
	}
}
