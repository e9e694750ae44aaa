package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vitalguard/vitalguard/internal/config"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

// deviceMetrics mimics the exposition a wearable publishes.
const deviceMetrics = `
# HELP vital_heart_rate_bpm Current heart rate in beats per minute.
# TYPE vital_heart_rate_bpm gauge
vital_heart_rate_bpm 72

# HELP vital_blood_oxygen_pct Current blood oxygen saturation.
# TYPE vital_blood_oxygen_pct gauge
vital_blood_oxygen_pct 97.5

# HELP vital_temperature_f Current body temperature in Fahrenheit.
# TYPE vital_temperature_f gauge
vital_temperature_f 98.6
`

// sinkSpy records every submission the poller pushes into the pipeline.
type sinkSpy struct {
	mu   sync.Mutex
	subs []*vitals.Submission
}

func (s *sinkSpy) Ingest(ctx context.Context, sub *vitals.Submission) (*vitals.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return sub.Reading(time.Now()), nil
}

func (s *sinkSpy) received() []*vitals.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*vitals.Submission(nil), s.subs...)
}

func metricsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDevicePoller_Poll(t *testing.T) {
	srv := metricsServer(t, deviceMetrics)

	d := &devicePoller{
		src:    config.Source{Subject: "u1", Endpoint: srv.URL},
		client: srv.Client(),
	}

	sub, err := d.poll(context.Background())
	if err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	if sub.Subject != "u1" {
		t.Errorf("subject = %q, want u1", sub.Subject)
	}
	if sub.HeartRate != 72 {
		t.Errorf("heart rate = %v, want 72", sub.HeartRate)
	}
	if sub.BloodOxygen != 97.5 {
		t.Errorf("blood oxygen = %v, want 97.5", sub.BloodOxygen)
	}
	if sub.Temperature == nil || *sub.Temperature != 98.6 {
		t.Errorf("temperature = %v, want 98.6", sub.Temperature)
	}
	if sub.Systolic != nil {
		t.Errorf("systolic should be absent, got %v", *sub.Systolic)
	}
}

func TestDevicePoller_MissingRequiredGauge(t *testing.T) {
	srv := metricsServer(t, "vital_heart_rate_bpm 72\n")

	d := &devicePoller{
		src:    config.Source{Subject: "u1", Endpoint: srv.URL},
		client: srv.Client(),
	}

	if _, err := d.poll(context.Background()); err == nil {
		t.Fatal("expected error for missing blood oxygen gauge, got nil")
	}
}

func TestDevicePoller_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := &devicePoller{
		src:    config.Source{Subject: "u1", Endpoint: srv.URL},
		client: srv.Client(),
	}

	if _, err := d.poll(context.Background()); err == nil {
		t.Fatal("expected error for 503 response, got nil")
	}
}

func TestPoller_FeedsPipeline(t *testing.T) {
	srv := metricsServer(t, deviceMetrics)

	sink := &sinkSpy{}
	p := New(config.MonitorConfig{
		PollInterval: time.Hour, // only the immediate first pass runs
		Sources: []config.Source{
			{Subject: "u1", Endpoint: srv.URL},
			{Subject: "u2", Endpoint: srv.URL},
		},
	}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for len(sink.received()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("poller delivered %d submissions, want 2", len(sink.received()))
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	subjects := map[string]bool{}
	for _, sub := range sink.received() {
		subjects[sub.Subject] = true
	}
	if !subjects["u1"] || !subjects["u2"] {
		t.Errorf("subjects polled: %v, want u1 and u2", subjects)
	}
}

func TestPoller_SetSourcesHotSwap(t *testing.T) {
	srv := metricsServer(t, deviceMetrics)

	sink := &sinkSpy{}
	p := New(config.MonitorConfig{PollInterval: time.Hour}, sink)

	// No sources yet: a pass does nothing.
	p.pollAll(context.Background())
	if n := len(sink.received()); n != 0 {
		t.Fatalf("sourceless pass delivered %d submissions", n)
	}

	p.SetSources([]config.Source{{Subject: "u3", Endpoint: srv.URL}})
	p.pollAll(context.Background())

	got := sink.received()
	if len(got) != 1 || got[0].Subject != "u3" {
		t.Fatalf("after SetSources got %d submissions, want one for u3", len(got))
	}
}

func TestBearerAuthHeader(t *testing.T) {
	t.Setenv("TEST_DEVICE_TOKEN", "tok-123")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(deviceMetrics))
	}))
	defer srv.Close()

	src := config.Source{
		Subject:  "u1",
		Endpoint: srv.URL,
		Auth:     config.SourceAuth{Mode: "bearer", TokenEnv: "TEST_DEVICE_TOKEN"},
	}
	d := &devicePoller{src: src, client: buildHTTPClient(src)}

	if _, err := d.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
}
