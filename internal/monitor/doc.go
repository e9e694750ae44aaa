// Package monitor polls wearable devices that expose their current vital
// signs as Prometheus gauges and feeds each sample into the ingest pipeline,
// so polled devices flow through the same scoring and alerting path as
// readings posted to the REST API.
package monitor
