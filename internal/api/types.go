package api

import (
	"github.com/vitalguard/vitalguard/internal/alerting"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

// PredictionResponse is the payload for POST /api/v1/health/predict.
// Nothing is persisted for a prediction call.
type PredictionResponse struct {
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`
	Confidence   float64 `json:"confidence"`
}

// MetricsResponse is the payload for GET /api/v1/health/metrics/{subject}.
type MetricsResponse struct {
	Subject        string   `json:"user_id"`
	WindowHours    int      `json:"window_hours"`
	AvgHeartRate   *float64 `json:"avg_heart_rate"`
	AvgBloodOxygen *float64 `json:"avg_blood_oxygen"`
	AnomalyCount   int64    `json:"anomaly_count"`
	TotalReadings  int64    `json:"total_readings"`
	LastReadingAt  *string  `json:"last_reading_at"` // RFC3339
}

// TrendBucket is one day of the dashboard anomaly trend, oldest first.
type TrendBucket struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Total     int    `json:"total"`
	Anomalies int    `json:"anomalies"`
}

// DashboardResponse is the payload for GET /api/v1/health/dashboard/{subject}.
type DashboardResponse struct {
	Subject      string           `json:"user_id"`
	Latest       *vitals.Reading  `json:"latest_reading"`
	Metrics      MetricsResponse  `json:"metrics"`
	RecentAlerts []alerting.Alert `json:"recent_alerts"`
	AnomalyTrend []TrendBucket    `json:"anomaly_trend"`
}

// registerRequest is the body for POST /api/v1/auth/register.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginRequest is the body for POST /api/v1/auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the payload for a successful login.
type tokenResponse struct {
	Token    string `json:"access_token"`
	Type     string `json:"token_type"`
	Username string `json:"username"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
