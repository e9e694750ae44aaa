package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vitalguard/vitalguard/internal/alerting"
	"github.com/vitalguard/vitalguard/internal/auth"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

// ErrNotFound is returned when a lookup by ID matches nothing.
var ErrNotFound = errors.New("store: not found")

// Store wraps the gorm handle.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// the schema bootstrap. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	if err := db.AutoMigrate(&vitals.Reading{}, &alerting.Alert{}, &auth.User{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// --- readings ---------------------------------------------------------------

// SaveReading persists r, assigning its ID.
func (s *Store) SaveReading(ctx context.Context, r *vitals.Reading) error {
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("store: save reading: %w", err)
	}
	return nil
}

// Readings returns subject's readings newest first. A zero or negative limit
// defaults to 100.
func (s *Store) Readings(ctx context.Context, subject string, limit, offset int) ([]vitals.Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []vitals.Reading
	q := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Offset(offset)
	if subject != "" {
		q = q.Where("user_id = ?", subject)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list readings: %w", err)
	}
	return out, nil
}

// Reading returns one reading by ID.
func (s *Store) Reading(ctx context.Context, id uint) (*vitals.Reading, error) {
	var r vitals.Reading
	err := s.db.WithContext(ctx).First(&r, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get reading %d: %w", id, err)
	}
	return &r, nil
}

// ReadingsSince returns subject's readings at or after since, oldest first.
func (s *Store) ReadingsSince(ctx context.Context, subject string, since time.Time) ([]vitals.Reading, error) {
	var out []vitals.Reading
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND timestamp >= ?", subject, since).
		Order("timestamp ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: readings since: %w", err)
	}
	return out, nil
}

// Summary aggregates a subject's readings over a window.
type Summary struct {
	AvgHeartRate   float64    `json:"avg_heart_rate"`
	AvgBloodOxygen float64    `json:"avg_blood_oxygen"`
	AnomalyCount   int64      `json:"anomaly_count"`
	TotalReadings  int64      `json:"total_readings"`
	LastReadingAt  *time.Time `json:"last_reading_time"`
}

// MetricsSummary computes the aggregate metrics for subject since the given
// time. An empty window yields a zero Summary, not an error.
func (s *Store) MetricsSummary(ctx context.Context, subject string, since time.Time) (Summary, error) {
	var row struct {
		AvgHr   sql.NullFloat64
		AvgSpo2 sql.NullFloat64
		Total   int64
	}
	err := s.db.WithContext(ctx).Model(&vitals.Reading{}).
		Select("AVG(heart_rate) AS avg_hr, AVG(blood_oxygen) AS avg_spo2, COUNT(*) AS total").
		Where("user_id = ? AND timestamp >= ?", subject, since).
		Scan(&row).Error
	if err != nil {
		return Summary{}, fmt.Errorf("store: metrics summary: %w", err)
	}

	sum := Summary{
		AvgHeartRate:   row.AvgHr.Float64,
		AvgBloodOxygen: row.AvgSpo2.Float64,
		TotalReadings:  row.Total,
	}

	// The timestamp goes through the model mapping rather than a raw
	// MAX() alias; sqlite hands aggregate aliases back as strings.
	if row.Total > 0 {
		var latest vitals.Reading
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND timestamp >= ?", subject, since).
			Order("timestamp DESC").
			First(&latest).Error
		if err != nil {
			return Summary{}, fmt.Errorf("store: metrics summary: %w", err)
		}
		t := latest.Timestamp
		sum.LastReadingAt = &t
	}

	err = s.db.WithContext(ctx).Model(&vitals.Reading{}).
		Where("user_id = ? AND timestamp >= ? AND is_anomaly = ?", subject, since, true).
		Count(&sum.AnomalyCount).Error
	if err != nil {
		return Summary{}, fmt.Errorf("store: anomaly count: %w", err)
	}
	return sum, nil
}

// --- alerts -----------------------------------------------------------------

// SaveAlert persists a, assigning its ID.
func (s *Store) SaveAlert(ctx context.Context, a *alerting.Alert) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("store: save alert: %w", err)
	}
	return nil
}

// RecentAlerts returns subject's newest alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, subject string, limit int) ([]alerting.Alert, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []alerting.Alert
	err := s.db.WithContext(ctx).
		Where("user_id = ?", subject).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent alerts: %w", err)
	}
	return out, nil
}

// Alerts lists alerts, optionally filtered by subject and read state,
// newest first.
func (s *Store) Alerts(ctx context.Context, subject string, read *bool, limit, offset int) ([]alerting.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Offset(offset)
	if subject != "" {
		q = q.Where("user_id = ?", subject)
	}
	if read != nil {
		q = q.Where("is_read = ?", *read)
	}
	var out []alerting.Alert
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list alerts: %w", err)
	}
	return out, nil
}

// MarkAlertRead sets the read flag on one alert.
func (s *Store) MarkAlertRead(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&alerting.Alert{}).
		Where("id = ?", id).
		Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("store: mark alert read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAlert removes one alert.
func (s *Store) DeleteAlert(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&alerting.Alert{}, id)
	if res.Error != nil {
		return fmt.Errorf("store: delete alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- users ------------------------------------------------------------------

// CreateUser persists a new account.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// UserByUsername returns the account with the given username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*auth.User, error) {
	var u auth.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %q: %w", username, err)
	}
	return &u, nil
}
