// Package pipeline runs the ingest sequence for a vitals submission:
// validate, score, persist, evaluate alerting policy, and fan results out to
// subscribed websocket connections. It is the only place the ordering of
// those stages is encoded.
package pipeline
