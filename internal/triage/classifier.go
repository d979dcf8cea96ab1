package triage

import "github.com/Kidomigon/nursing-home-ai/internal/event"

// Classification is the severity decision for a single event: which tier it
// lands in and whether it surfaces in the staff feed at all.
type Classification struct {
	Severity Severity
	Visible  bool
}

// Classifier maps (kind, confidence) to a severity tier and visibility.
// Deterministic and side-effect-free; it never consults persisted state.
type Classifier struct {
	emergencyThreshold float64
	visibilityFloor    float64
}

// NewClassifier builds a Classifier. Events at or above emergencyThreshold
// for distress-class kinds become EMERGENCY; events below visibilityFloor
// are suppressed outright rather than downgraded, so low-confidence signals
// never fabricate certainty in the staff feed.
func NewClassifier(emergencyThreshold, visibilityFloor float64) *Classifier {
	return &Classifier{
		emergencyThreshold: emergencyThreshold,
		visibilityFloor:    visibilityFloor,
	}
}

// Classify returns the severity tier and visibility for an event.
func (c *Classifier) Classify(kind event.Kind, confidence float64) Classification {
	// Below the floor nothing is actionable, whatever the kind claims.
	if confidence < c.visibilityFloor {
		return Classification{Severity: SeverityInformational, Visible: false}
	}

	switch kind {
	case event.KindFallSuspected, event.KindHelpCall, event.KindDistressSustained:
		if confidence >= c.emergencyThreshold {
			return Classification{Severity: SeverityEmergency, Visible: true}
		}
		return Classification{Severity: SeverityUrgent, Visible: true}
	case event.KindAssistanceRequest:
		return Classification{Severity: SeverityRoutine, Visible: true}
	case event.KindOrientationQuestion:
		return Classification{Severity: SeverityInformational, Visible: false}
	}

	// Unknown kinds are rejected by the normalizer before they reach here.
	return Classification{Severity: SeverityInformational, Visible: false}
}
