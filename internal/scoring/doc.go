// Package scoring wraps the anomaly-scoring artifact used by the ingestion
// pipeline: a fitted per-feature standardizer followed by an isolation-forest
// decision function.
//
// The artifact is loaded once at startup and is immutable afterwards; Score is
// pure and safe for unbounded concurrent use without locking. When no artifact
// exists on disk, LoadOrTrain fits a default model from a fixed synthetic
// distribution of normal and abnormal vitals so the service can always
// classify, at reduced real-world accuracy. That degraded-mode startup is
// logged as a warning.
//
// Score conventions follow the fitted model: more negative anomaly scores mean
// greater abnormality, and a reading is flagged anomalous when its score falls
// below the fitted contamination threshold. Confidence is min(|score|·100, 100)
// — a display heuristic, not a calibrated probability.
package scoring
