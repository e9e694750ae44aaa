// Package auth provides account credentials and request authentication for
// VitalGuard.
//
// Passwords are stored as bcrypt hashes. Login issues an HS256 JWT whose
// subject is the username; Middleware validates the Bearer token on API
// requests and rejects missing or invalid tokens with 401.
//
// When the configured mode is not "jwt", or no secret is configured, all
// requests pass through unauthenticated — useful for local development with
// auth disabled.
package auth
