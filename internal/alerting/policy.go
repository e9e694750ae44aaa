package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vitalguard/vitalguard/internal/scoring"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

// Alert kinds.
const (
	KindAnomaly  = "anomaly"
	KindCritical = "critical"
	KindWarning  = "warning"
	KindInfo     = "info"
)

// Alert severities, ordered low to critical.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Vital thresholds that escalate an anomaly straight to critical severity,
// regardless of model confidence.
const (
	criticalHRLow   = 50.0
	criticalHRHigh  = 120.0
	criticalSpO2Low = 90.0
	highConfidence  = 80.0
)

// Alert is one persisted alert raised for a subject. Only Policy.Evaluate
// creates alerts; the read flag is mutated through the record store.
type Alert struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UID       string    `json:"uid" gorm:"uniqueIndex"`
	Subject   string    `json:"user_id" gorm:"column:user_id;index"`
	Kind      string    `json:"alert_type" gorm:"column:alert_type"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity"`
	Read      bool      `json:"is_read" gorm:"column:is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the table name the original schema used.
func (Alert) TableName() string { return "alerts" }

// Policy decides whether a classified reading warrants an alert and at what
// severity. Stateless and safe for concurrent use.
type Policy struct {
	now func() time.Time // injectable for deterministic tests
}

// NewPolicy returns a Policy using the wall clock.
func NewPolicy() *Policy {
	return &Policy{now: time.Now}
}

// Evaluate returns the alert for reading, or nil when the classification is
// not anomalous. Severity rules, first match wins:
//
//  1. critical — heart rate < 50 or > 120 bpm, or blood oxygen < 90%
//  2. high     — confidence > 80
//  3. medium   — any other anomaly
func (p *Policy) Evaluate(reading *vitals.Reading, c scoring.Classification) *Alert {
	if !c.Anomalous {
		return nil
	}
	return &Alert{
		UID:      uuid.NewString(),
		Subject:  reading.Subject,
		Kind:     KindAnomaly,
		Severity: severity(reading, c),
		Message: fmt.Sprintf("Anomaly detected: HR=%g, SpO2=%g%%",
			reading.HeartRate, reading.BloodOxygen),
		CreatedAt: p.now().UTC(),
	}
}

func severity(reading *vitals.Reading, c scoring.Classification) string {
	switch {
	case reading.HeartRate < criticalHRLow,
		reading.HeartRate > criticalHRHigh,
		reading.BloodOxygen < criticalSpO2Low:
		return SeverityCritical
	case c.Confidence > highConfidence:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}
