// Package vitals defines the reading domain model and input validation for
// VitalGuard.
//
// A Submission is one raw set of vital measurements as received from a client
// or a device poll. Submission.Normalize validates every field against the
// accepted physiological ranges and produces the fixed-order feature vector
// consumed by the scorer. Out-of-range values are rejected, never clamped —
// a wearable reporting a heart rate of 20 bpm is a data problem the caller
// must see, not something to silently round up.
//
// A Reading is the persisted record: the submitted measurements plus the
// anomaly score and flag filled in by the scoring pipeline. The two anomaly
// fields are always set together; a Reading that could not be scored keeps
// both at their zero values with Scored == false.
package vitals
