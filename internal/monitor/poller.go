package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/vitalguard/vitalguard/internal/config"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

const defaultPollTimeout = 10 * time.Second

// Gauge names devices expose on their metrics endpoint. Heart rate and blood
// oxygen are required; a scrape missing either is skipped.
const (
	metricHeartRate   = "vital_heart_rate_bpm"
	metricBloodOxygen = "vital_blood_oxygen_pct"
	metricTemperature = "vital_temperature_f"
	metricSystolic    = "vital_blood_pressure_systolic_mmhg"
	metricDiastolic   = "vital_blood_pressure_diastolic_mmhg"
)

// Ingester is the slice of the pipeline the poller feeds.
type Ingester interface {
	Ingest(ctx context.Context, sub *vitals.Submission) (*vitals.Reading, error)
}

// devicePoller scrapes one device endpoint. The HTTP client is built once
// per source and reused across polls.
type devicePoller struct {
	src    config.Source
	client *http.Client
}

// Poller periodically scrapes every configured device and submits the
// readings to the pipeline. The device set is hot-swappable via SetSources;
// the poll interval is fixed at construction.
type Poller struct {
	interval time.Duration
	sink     Ingester
	log      *slog.Logger

	mu      sync.RWMutex
	devices []*devicePoller
}

// New builds a poller for the given monitor configuration. A poller with no
// sources is valid and idles until SetSources hands it some.
func New(cfg config.MonitorConfig, sink Ingester) *Poller {
	p := &Poller{
		interval: cfg.PollInterval,
		sink:     sink,
		log:      slog.Default().With("component", "monitor"),
	}
	p.SetSources(cfg.Sources)
	return p
}

// SetSources replaces the polled device set. Takes effect on the next pass.
func (p *Poller) SetSources(sources []config.Source) {
	devices := make([]*devicePoller, 0, len(sources))
	for _, src := range sources {
		devices = append(devices, &devicePoller{
			src:    src,
			client: buildHTTPClient(src),
		})
	}
	p.mu.Lock()
	p.devices = devices
	p.mu.Unlock()
}

func (p *Poller) currentDevices() []*devicePoller {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.devices
}

// Run polls all devices every interval until ctx is cancelled. The first
// pass happens immediately.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info("device polling started", "sources", len(p.currentDevices()), "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("device polling stopped")
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, d := range p.currentDevices() {
		sub, err := d.poll(ctx)
		if err != nil {
			p.log.Warn("device poll failed", "subject", d.src.Subject, "endpoint", d.src.Endpoint, "error", err)
			continue
		}
		if _, err := p.sink.Ingest(ctx, sub); err != nil {
			p.log.Warn("device reading rejected", "subject", d.src.Subject, "error", err)
		}
	}
}

// poll scrapes the device endpoint once and assembles a submission from the
// exposed gauges.
func (d *devicePoller) poll(ctx context.Context) (*vitals.Submission, error) {
	mfs, err := fetchMetrics(ctx, d.client, d.src.Endpoint)
	if err != nil {
		return nil, err
	}

	hr, ok := gaugeValue(mfs[metricHeartRate])
	if !ok {
		return nil, fmt.Errorf("gauge %s not exposed", metricHeartRate)
	}
	spo2, ok := gaugeValue(mfs[metricBloodOxygen])
	if !ok {
		return nil, fmt.Errorf("gauge %s not exposed", metricBloodOxygen)
	}

	sub := &vitals.Submission{
		Subject:     d.src.Subject,
		HeartRate:   hr,
		BloodOxygen: spo2,
	}
	if v, ok := gaugeValue(mfs[metricTemperature]); ok {
		sub.Temperature = &v
	}
	if v, ok := gaugeValue(mfs[metricSystolic]); ok {
		sub.Systolic = &v
	}
	if v, ok := gaugeValue(mfs[metricDiastolic]); ok {
		sub.Diastolic = &v
	}
	return sub, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.SourceAuth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

func buildHTTPClient(src config.Source) *http.Client {
	return &http.Client{
		Transport: &authRoundTripper{base: http.DefaultTransport, auth: src.Auth},
		Timeout:   defaultPollTimeout,
	}
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// gaugeValue extracts the value of the first gauge or untyped sample in a
// MetricFamily. ok is false if mf is nil or carries no usable sample.
func gaugeValue(mf *dto.MetricFamily) (v float64, ok bool) {
	if mf == nil {
		return 0, false
	}
	for _, m := range mf.GetMetric() {
		switch {
		case m.Gauge != nil:
			return m.Gauge.GetValue(), true
		case m.Untyped != nil:
			return m.Untyped.GetValue(), true
		}
	}
	return 0, false
}
