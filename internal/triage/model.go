package triage

import (
	"time"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
)

// Severity ranks how urgently staff must respond to an alert.
type Severity string

const (
	SeverityEmergency     Severity = "EMERGENCY"
	SeverityUrgent        Severity = "URGENT"
	SeverityRoutine       Severity = "ROUTINE"
	SeverityInformational Severity = "INFORMATIONAL"
)

// rank orders severities for comparison; higher is more severe.
func (s Severity) rank() int {
	switch s {
	case SeverityEmergency:
		return 3
	case SeverityUrgent:
		return 2
	case SeverityRoutine:
		return 1
	case SeverityInformational:
		return 0
	}
	return -1
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Known reports whether s is a recognized severity tier.
func (s Severity) Known() bool {
	return s.rank() >= 0
}

// Status tracks where an alert is in its lifecycle. It only moves forward:
// NEW -> ACKNOWLEDGED -> RESOLVED, and RESOLVED is terminal.
type Status string

const (
	StatusNew          Status = "NEW"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResolved     Status = "RESOLVED"
)

// Known reports whether s is a recognized lifecycle status.
func (s Status) Known() bool {
	switch s {
	case StatusNew, StatusAcknowledged, StatusResolved:
		return true
	}
	return false
}

// Open reports whether the alert can still absorb merged events.
func (s Status) Open() bool {
	return s == StatusNew || s == StatusAcknowledged
}

// Transition names a single alert state change for the audit trail.
type Transition string

const (
	TransitionCreated      Transition = "CREATED"
	TransitionMerged       Transition = "MERGED"
	TransitionAcknowledged Transition = "ACKNOWLEDGED"
	TransitionEscalated    Transition = "ESCALATED"
	TransitionResolved     Transition = "RESOLVED"
	TransitionNoteAdded    Transition = "NOTE_ADDED"
)

// ActorSystem is the audit actor for transitions the engine performs itself.
const ActorSystem = "SYSTEM"

// Note is a single staff-authored annotation on an alert.
type Note struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Alert is the persisted, staff-visible record derived from one or more
// events. Severity never decreases after creation; a higher-severity merge
// raises it with an audited override.
type Alert struct {
	ID              string     `json:"id"`
	RoomID          string     `json:"room_id"`
	ResidentRef     string     `json:"resident_ref"`
	Severity        Severity   `json:"severity"`
	Kind            event.Kind `json:"kind"`
	Explanation     string     `json:"explanation"`
	OccurrenceCount int        `json:"occurrence_count"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	AcknowledgedBy  string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  time.Time  `json:"acknowledged_at,omitzero"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      time.Time  `json:"resolved_at,omitzero"`
	Notes           []Note     `json:"notes,omitempty"`
	LastEscalatedAt time.Time  `json:"last_escalated_at,omitzero"`
	EscalationCount int        `json:"escalation_count"`
}

// AuditEntry is an immutable record of one alert transition and its actor.
type AuditEntry struct {
	AlertID    string     `json:"alert_id"`
	Transition Transition `json:"transition"`
	Actor      string     `json:"actor"`
	At         time.Time  `json:"at"`
	Detail     string     `json:"detail,omitempty"`
}
