// Package event defines the classified room-sensing event that the triage
// engine consumes, and the normalizer that validates raw submissions.
// Events carry a kind, a confidence and a short explanation; raw audio or
// conversation text never crosses this boundary.
package event

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind is the classified event type produced by the room sensing collaborator.
type Kind string

const (
	KindHelpCall            Kind = "HELP_CALL"
	KindFallSuspected       Kind = "FALL_SUSPECTED"
	KindDistressSustained   Kind = "DISTRESS_SUSTAINED"
	KindAssistanceRequest   Kind = "ASSISTANCE_REQUEST"
	KindOrientationQuestion Kind = "ORIENTATION_QUESTION"
)

// Known reports whether k is a recognized event kind.
func (k Kind) Known() bool {
	switch k {
	case KindHelpCall, KindFallSuspected, KindDistressSustained,
		KindAssistanceRequest, KindOrientationQuestion:
		return true
	}
	return false
}

// Event is a single classified signal from a room device.
type Event struct {
	RoomID      string    `json:"room_id"`
	Kind        Kind      `json:"kind"`
	Confidence  float64   `json:"confidence"`
	ObservedAt  time.Time `json:"observed_at"`
	Explanation string    `json:"explanation"`
}

// ValidationError reports a malformed or out-of-range event field. The
// submission is rejected before any state change, so it is safe to retry
// after correction.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

// maxExplanationLen caps the stored explanation so a misbehaving device
// cannot smuggle transcript-sized text into alert records.
const maxExplanationLen = 500

// Normalizer validates and canonicalizes raw events. Pure: no side effects,
// no stored state beyond configuration.
type Normalizer struct {
	maxSkew time.Duration
	now     func() time.Time
}

// NewNormalizer creates a Normalizer that rejects events whose observed_at
// deviates from the local clock by more than maxSkew.
func NewNormalizer(maxSkew time.Duration) *Normalizer {
	return &Normalizer{maxSkew: maxSkew, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (n *Normalizer) WithNow(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize returns the canonical form of ev (UTC timestamp, trimmed and
// capped explanation) or a *ValidationError.
func (n *Normalizer) Normalize(ev Event) (Event, error) {
	if strings.TrimSpace(ev.RoomID) == "" {
		return Event{}, &ValidationError{Field: "room_id", Reason: "must not be empty"}
	}
	if !ev.Kind.Known() {
		return Event{}, &ValidationError{Field: "kind", Reason: fmt.Sprintf("unrecognized kind %q", string(ev.Kind))}
	}
	if ev.Confidence < 0 || ev.Confidence > 1 {
		return Event{}, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v outside [0,1]", ev.Confidence)}
	}
	if ev.ObservedAt.IsZero() {
		return Event{}, &ValidationError{Field: "observed_at", Reason: "missing timestamp"}
	}
	if skew := n.now().Sub(ev.ObservedAt); skew > n.maxSkew || skew < -n.maxSkew {
		return Event{}, &ValidationError{Field: "observed_at", Reason: fmt.Sprintf("outside acceptable clock skew of %s", n.maxSkew)}
	}

	out := ev
	out.RoomID = strings.TrimSpace(ev.RoomID)
	out.ObservedAt = ev.ObservedAt.UTC()
	out.Explanation = strings.TrimSpace(ev.Explanation)
	if len(out.Explanation) > maxExplanationLen {
		// Cut on a rune boundary so the stored text stays valid UTF-8.
		cut := maxExplanationLen
		for cut > 0 && !utf8.RuneStart(out.Explanation[cut]) {
			cut--
		}
		out.Explanation = out.Explanation[:cut]
	}
	return out, nil
}
