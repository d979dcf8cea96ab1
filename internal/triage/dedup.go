package triage

import (
	"time"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
)

// Deduper decides whether a new event describes an incident that already has
// an open alert, so repeated signals collapse into one occurrence count
// instead of flooding the staff feed.
type Deduper struct {
	window          time.Duration
	emergencyWindow time.Duration
}

// NewDeduper builds a Deduper. Emergencies use the tighter window: a second
// cry for help moments later still merges, but a later one after the first
// incident has aged out starts a fresh alert.
func NewDeduper(window, emergencyWindow time.Duration) *Deduper {
	return &Deduper{window: window, emergencyWindow: emergencyWindow}
}

// compatibleKinds maps event kinds that describe the same underlying
// incident: sustained distress following a suspected fall is one incident.
var compatibleKinds = map[event.Kind]event.Kind{
	event.KindDistressSustained: event.KindFallSuspected,
	event.KindFallSuspected:     event.KindDistressSustained,
}

// Match returns the open alert ev should merge into, or nil when ev starts a
// new alert. Candidates must be for the same room (the caller guarantees
// this), NEW or ACKNOWLEDGED, of the same or a compatible kind, and created
// within the dedup window. Merging across severities is only allowed upward:
// an event classified strictly below the alert's severity still merges, and
// when the event outranks the alert the merge raises the alert's severity
// instead (see Service.Ingest).
func (d *Deduper) Match(ev event.Event, cls Classification, open []*Alert, now time.Time) *Alert {
	var best *Alert
	for _, al := range open {
		if !al.Status.Open() {
			continue
		}
		if al.Kind != ev.Kind && compatibleKinds[ev.Kind] != al.Kind {
			continue
		}

		w := d.window
		if cls.Severity == SeverityEmergency || al.Severity == SeverityEmergency {
			w = d.emergencyWindow
		}
		if now.Sub(al.CreatedAt) > w {
			continue
		}

		// Prefer the most recent incident when several qualify.
		if best == nil || al.CreatedAt.After(best.CreatedAt) {
			best = al
		}
	}
	return best
}
