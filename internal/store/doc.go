// Package store is the VitalGuard record store: readings, alerts, and user
// accounts persisted through gorm on an embedded SQLite database.
//
// The pipeline only ever touches three shapes — SaveReading, SaveAlert,
// RecentAlerts. The wider query surface (reading lists, alert read/delete,
// metrics summaries) exists for the REST API. All methods take a context and
// are safe for concurrent use; gorm serializes access to the underlying
// SQLite handle.
package store
