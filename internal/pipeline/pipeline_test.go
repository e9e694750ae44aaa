package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vitalguard/vitalguard/internal/alerting"
	"github.com/vitalguard/vitalguard/internal/fanout"
	"github.com/vitalguard/vitalguard/internal/scoring"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

var (
	trainOnce  sync.Once
	trainedArt *scoring.Artifact
)

func testScorer(t *testing.T) *scoring.Scorer {
	t.Helper()
	trainOnce.Do(func() {
		trainedArt = scoring.TrainDefault()
	})
	s, err := scoring.NewScorer(trainedArt)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

// fakeStore records saved readings and alerts and can be told to fail.
type fakeStore struct {
	mu       sync.Mutex
	readings []*vitals.Reading
	alerts   []*alerting.Alert

	failReading error
	failAlert   error
}

func (f *fakeStore) SaveReading(ctx context.Context, r *vitals.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReading != nil {
		return f.failReading
	}
	r.ID = uint(len(f.readings) + 1)
	f.readings = append(f.readings, r)
	return nil
}

func (f *fakeStore) SaveAlert(ctx context.Context, a *alerting.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAlert != nil {
		return f.failAlert
	}
	a.ID = uint(len(f.alerts) + 1)
	f.alerts = append(f.alerts, a)
	return nil
}

// memChannel collects delivered frames for one subject.
type memChannel struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *memChannel) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, b)
	return nil
}

func (c *memChannel) Close() error { return nil }

func (c *memChannel) types(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, b := range c.frames {
		var ev fanout.Event
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, ev.Type)
	}
	return out
}

func newTestPipeline(t *testing.T, st *fakeStore) (*Pipeline, *fanout.Registry) {
	t.Helper()
	reg := fanout.NewRegistry()
	p := New(testScorer(t), st, alerting.NewPolicy(), nil, fanout.NewDispatcher(reg))
	p.clock = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }
	return p, reg
}

func TestIngest_NormalReading(t *testing.T) {
	st := &fakeStore{}
	p, _ := newTestPipeline(t, st)

	r, err := p.Ingest(context.Background(), &vitals.Submission{
		Subject: "u1", HeartRate: 75, BloodOxygen: 98,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !r.Scored {
		t.Error("reading not scored")
	}
	if r.Anomalous {
		t.Errorf("resting vitals flagged anomalous, score %v", r.AnomalyScore)
	}
	if len(st.readings) != 1 {
		t.Fatalf("persisted %d readings, want 1", len(st.readings))
	}
	if len(st.alerts) != 0 {
		t.Fatalf("normal reading raised %d alerts", len(st.alerts))
	}
}

func TestIngest_AnomalyRaisesCriticalAlert(t *testing.T) {
	st := &fakeStore{}
	p, reg := newTestPipeline(t, st)

	ch := &memChannel{}
	reg.Register("u1", ch)

	r, err := p.Ingest(context.Background(), &vitals.Submission{
		Subject: "u1", HeartRate: 45, BloodOxygen: 85,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !r.Anomalous {
		t.Fatalf("HR 45 / SpO2 85 not flagged, score %v", r.AnomalyScore)
	}

	if len(st.alerts) != 1 {
		t.Fatalf("persisted %d alerts, want 1", len(st.alerts))
	}
	if got := st.alerts[0].Severity; got != alerting.SeverityCritical {
		t.Errorf("severity = %q, want critical", got)
	}

	got := ch.types(t)
	want := []string{fanout.EventHealthUpdate, fanout.EventAlert}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("delivered %v, want %v", got, want)
		}
	}
}

func TestIngest_ValidationRejected(t *testing.T) {
	st := &fakeStore{}
	p, _ := newTestPipeline(t, st)

	_, err := p.Ingest(context.Background(), &vitals.Submission{
		Subject: "u1", HeartRate: 300, BloodOxygen: 98,
	})
	var ve *vitals.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if ve.Field != "heart_rate" {
		t.Errorf("rejected field = %q, want heart_rate", ve.Field)
	}
	if len(st.readings) != 0 {
		t.Error("rejected submission was persisted")
	}
}

func TestIngest_MissingSubjectRejected(t *testing.T) {
	st := &fakeStore{}
	p, _ := newTestPipeline(t, st)

	_, err := p.Ingest(context.Background(), &vitals.Submission{
		HeartRate: 75, BloodOxygen: 98,
	})
	var ve *vitals.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v, want ValidationError", err)
	}
	if ve.Field != "user_id" {
		t.Errorf("rejected field = %q, want user_id", ve.Field)
	}
	if len(st.readings) != 0 {
		t.Error("subjectless submission was persisted")
	}
}

func TestIngest_StoreFailureAborts(t *testing.T) {
	boom := errors.New("disk full")
	st := &fakeStore{failReading: boom}
	p, reg := newTestPipeline(t, st)

	ch := &memChannel{}
	reg.Register("u1", ch)

	_, err := p.Ingest(context.Background(), &vitals.Submission{
		Subject: "u1", HeartRate: 45, BloodOxygen: 85,
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped store error", err)
	}
	if len(st.alerts) != 0 {
		t.Error("alert persisted after reading save failed")
	}
	if n := len(ch.types(t)); n != 0 {
		t.Errorf("%d events delivered after aborted ingest", n)
	}
}

func TestIngest_AlertSaveFailureKeepsReading(t *testing.T) {
	st := &fakeStore{failAlert: errors.New("alerts table locked")}
	p, reg := newTestPipeline(t, st)

	ch := &memChannel{}
	reg.Register("u1", ch)

	r, err := p.Ingest(context.Background(), &vitals.Submission{
		Subject: "u1", HeartRate: 45, BloodOxygen: 85,
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if r.ID == 0 {
		t.Error("reading not persisted")
	}

	got := ch.types(t)
	if len(got) != 1 || got[0] != fanout.EventHealthUpdate {
		t.Errorf("delivered %v, want just health_update", got)
	}
}
