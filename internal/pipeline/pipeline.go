package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitalguard/vitalguard/internal/alerting"
	"github.com/vitalguard/vitalguard/internal/fanout"
	"github.com/vitalguard/vitalguard/internal/scoring"
	"github.com/vitalguard/vitalguard/internal/vitals"
)

// RecordStore is the slice of the record store the pipeline writes through.
type RecordStore interface {
	SaveReading(ctx context.Context, r *vitals.Reading) error
	SaveAlert(ctx context.Context, a *alerting.Alert) error
}

// Dispatcher pushes events at every connection registered for a subject.
type Dispatcher interface {
	Deliver(subject string, ev fanout.Event) int
}

// Notifier delivers alerts to external webhook targets.
type Notifier interface {
	Notify(a *alerting.Alert)
}

// Pipeline wires the scorer, record store, alert policy and websocket
// dispatcher into the single ingest path shared by the REST API and the
// device monitor. Safe for concurrent use.
type Pipeline struct {
	scorer   *scoring.Scorer
	store    RecordStore
	policy   *alerting.Policy
	notifier Notifier
	disp     Dispatcher
	clock    func() time.Time

	log *slog.Logger
}

// New assembles a pipeline. notifier may be nil when no webhook targets are
// configured.
func New(scorer *scoring.Scorer, store RecordStore, policy *alerting.Policy, notifier Notifier, disp Dispatcher) *Pipeline {
	return &Pipeline{
		scorer:   scorer,
		store:    store,
		policy:   policy,
		notifier: notifier,
		disp:     disp,
		clock:    time.Now,
		log:      slog.Default().With("component", "pipeline"),
	}
}

// Ingest processes one submission end to end and returns the persisted
// reading. A validation failure or a store failure aborts the whole
// sequence; a scoring shape failure does not, the reading is persisted
// unscored and alerting is skipped for it.
func (p *Pipeline) Ingest(ctx context.Context, sub *vitals.Submission) (*vitals.Reading, error) {
	if sub.Subject == "" {
		return nil, &vitals.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	vec, err := sub.Normalize()
	if err != nil {
		return nil, err
	}

	reading := sub.Reading(p.clock())

	c, err := p.scorer.Score(vec)
	switch {
	case err == nil:
		reading.AnomalyScore = c.AnomalyScore
		reading.Anomalous = c.Anomalous
		reading.Scored = true
	case isShapeError(err):
		p.log.Warn("scoring skipped", "subject", sub.Subject, "error", err)
	default:
		return nil, fmt.Errorf("score reading: %w", err)
	}

	if err := p.store.SaveReading(ctx, reading); err != nil {
		return nil, fmt.Errorf("save reading: %w", err)
	}

	p.disp.Deliver(reading.Subject, fanout.NewEvent(fanout.EventHealthUpdate, reading))

	if reading.Scored {
		if alert := p.policy.Evaluate(reading, c); alert != nil {
			if err := p.store.SaveAlert(ctx, alert); err != nil {
				// The reading is already durable; surface the alert loss
				// instead of failing the whole ingest.
				p.log.Error("save alert failed", "subject", reading.Subject, "error", err)
			} else {
				if p.notifier != nil {
					go p.notifier.Notify(alert)
				}
				p.disp.Deliver(alert.Subject, fanout.NewEvent(fanout.EventAlert, alert))
			}
		}
	}

	return reading, nil
}

func isShapeError(err error) bool {
	var se *scoring.ShapeError
	return errors.As(err, &se)
}
