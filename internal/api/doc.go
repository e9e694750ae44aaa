// Package api is the HTTP handler for all /api/v1/* endpoints: reading
// ingest and history, on-demand prediction, per-subject metrics and
// dashboard aggregation, alert management, and user registration and login.
package api
