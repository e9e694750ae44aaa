// Package alerting turns anomalous readings into alerts and delivers webhook
// notifications for the severe ones.
//
// Policy.Evaluate applies a deterministic severity ladder to a classified
// reading: vitals in a dangerous absolute range are critical, high-confidence
// anomalies are high, everything else anomalous is medium. Non-anomalous
// readings never produce an alert.
//
// The policy applies no deduplication or rate limiting: every anomalous
// reading yields its own alert, matching the upstream behaviour. Receivers
// that need throttling should apply it on their side.
package alerting
