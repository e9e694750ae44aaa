package fanout

import "log/slog"

// Dispatcher delivers events to registered channels. Fire-and-forget from the
// caller's perspective: failures prune the offending channel and are logged,
// never returned.
type Dispatcher struct {
	reg *Registry
}

// NewDispatcher returns a Dispatcher over reg.
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Deliver sends ev to every channel registered for subject and returns how
// many sends succeeded. A failing channel is unregistered and closed after
// the delivery pass; its siblings are unaffected.
func (d *Dispatcher) Deliver(subject string, ev Event) int {
	return d.send(d.reg.ChannelsFor(subject), ev)
}

// Broadcast sends ev to every channel across every subject.
func (d *Dispatcher) Broadcast(ev Event) int {
	return d.send(d.reg.All(), ev)
}

func (d *Dispatcher) send(targets []*Handle, ev Event) int {
	if len(targets) == 0 {
		return 0
	}

	msg, err := ev.Encode()
	if err != nil {
		slog.Error("fanout: encode event failed", "type", ev.Type, "err", err)
		return 0
	}

	// Snapshot is already taken; collect failures during the pass and prune
	// after it, so one dead channel cannot disturb iteration or siblings.
	var delivered int
	var failed []*Handle
	for _, h := range targets {
		if err := h.ch.Send(msg); err != nil {
			slog.Warn("fanout: channel send failed — pruning",
				"subject", h.subject, "type", ev.Type, "err", err)
			failed = append(failed, h)
			continue
		}
		delivered++
	}

	for _, h := range failed {
		d.reg.Unregister(h)
		h.ch.Close() //nolint:errcheck
	}
	return delivered
}
