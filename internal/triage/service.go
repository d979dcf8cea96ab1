package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/Kidomigon/nursing-home-ai/internal/event"
)

// ValidationError is the rejection type for malformed input, shared with the
// event normalizer.
type ValidationError = event.ValidationError

// IngestOutcome says what a submitted event became.
type IngestOutcome string

const (
	OutcomeCreated    IngestOutcome = "created"
	OutcomeMerged     IngestOutcome = "merged"
	OutcomeSuppressed IngestOutcome = "suppressed"
)

// IngestResult is returned to the sensing collaborator for each event.
type IngestResult struct {
	AlertID string        `json:"alert_id,omitempty"`
	Outcome IngestOutcome `json:"outcome"`
	Alert   *Alert        `json:"-"`
}

// Dispatcher fans a committed alert state change out to notification
// channels. Dispatch must not block and must never fail the caller;
// notification is a consequence of a committed state change, never a
// precondition for it.
type Dispatcher interface {
	Dispatch(al *Alert, transition Transition)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(*Alert, Transition) {}

// RoomDirectory resolves a room to its opaque resident reference.
type RoomDirectory interface {
	Resident(ctx context.Context, roomID string) (string, bool, error)
}

// Service is the business boundary for the triage engine: event ingestion
// (classify, dedup, create/merge), staff actions, and feed queries.
type Service struct {
	store      Store
	classifier *Classifier
	deduper    *Deduper
	rooms      RoomDirectory
	dispatcher Dispatcher
	trends     *TrendRecorder
	metrics    *Metrics
	logger     log.Logger
	now        func() time.Time
}

// NewService wires the triage service. dispatcher and metrics may be nil
// (no notifications, no instrumentation).
func NewService(store Store, classifier *Classifier, deduper *Deduper, rooms RoomDirectory, dispatcher Dispatcher, trends *TrendRecorder, metrics *Metrics, logger log.Logger) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if dispatcher == nil {
		dispatcher = nopDispatcher{}
	}
	return &Service{
		store:      store,
		classifier: classifier,
		deduper:    deduper,
		rooms:      rooms,
		dispatcher: dispatcher,
		trends:     trends,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest accepts a normalized event and decides whether it creates a new
// alert, merges into an open one, or is suppressed as informational noise.
// Exactly one CREATED or MERGED audit entry is written per successful
// non-suppressed ingestion.
func (s *Service) Ingest(ctx context.Context, ev event.Event) (*IngestResult, error) {
	cls := s.classifier.Classify(ev.Kind, ev.Confidence)

	if !cls.Visible {
		if s.trends != nil {
			s.trends.Record(ev.RoomID, ev.Kind)
		}
		s.countIngest(OutcomeSuppressed)
		s.logger.Info(ctx, "event suppressed", "room", ev.RoomID, "kind", ev.Kind, "confidence", ev.Confidence)
		return &IngestResult{Outcome: OutcomeSuppressed}, nil
	}

	residentRef, ok, err := s.rooms.Resident(ctx, ev.RoomID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &UnknownRoomError{RoomID: ev.RoomID}
	}

	open, err := s.store.OpenByRoom(ctx, ev.RoomID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if match := s.deduper.Match(ev, cls, open, now); match != nil {
		al, err := s.store.Mutate(ctx, match.ID, mergeEvent(ev, cls, now))
		switch {
		case err == nil:
			s.countIngest(OutcomeMerged)
			s.logger.Info(ctx, "event merged", "alert_id", al.ID, "room", al.RoomID, "occurrences", al.OccurrenceCount)
			return &IngestResult{AlertID: al.ID, Outcome: OutcomeMerged, Alert: al}, nil
		case lostMergeRace(err):
			// The candidate resolved between the read and the merge; a new
			// event after resolution starts a new alert.
		default:
			return nil, err
		}
	}

	al := &Alert{
		ID:              ulid.Make().String(),
		RoomID:          ev.RoomID,
		ResidentRef:     residentRef,
		Severity:        cls.Severity,
		Kind:            ev.Kind,
		Explanation:     ev.Explanation,
		OccurrenceCount: 1,
		Status:          StatusNew,
		CreatedAt:       now,
		LastSeenAt:      now,
	}
	entry := &AuditEntry{
		AlertID:    al.ID,
		Transition: TransitionCreated,
		Actor:      ActorSystem,
		At:         now,
		Detail:     fmt.Sprintf("%s confidence %.2f", ev.Kind, ev.Confidence),
	}
	if err := s.store.Create(ctx, al, entry); err != nil {
		return nil, err
	}

	s.countIngest(OutcomeCreated)
	if s.metrics != nil {
		s.metrics.AlertsCreated.WithLabelValues(string(al.Severity)).Inc()
	}
	s.logger.Info(ctx, "alert created", "alert_id", al.ID, "room", al.RoomID, "severity", al.Severity, "kind", al.Kind)

	s.dispatcher.Dispatch(al, TransitionCreated)

	return &IngestResult{AlertID: al.ID, Outcome: OutcomeCreated, Alert: al}, nil
}

// lostMergeRace reports whether a merge failed because the candidate alert
// left the open state (or vanished) after the dedup read.
func lostMergeRace(err error) bool {
	var ise *InvalidStateError
	var nfe *NotFoundError
	return errors.As(err, &ise) || errors.As(err, &nfe)
}

// mergeEvent builds the merge mutation: bump the occurrence count, refresh
// the last-seen marker, and raise severity when the new event demands it.
// created_at is untouched so staff see true incident age. The merged event's
// explanation goes into the audit detail so a follow-up's description is
// never lost even though the alert keeps its original text.
func mergeEvent(ev event.Event, cls Classification, now time.Time) Mutation {
	return func(al *Alert) (*AuditEntry, error) {
		if !al.Status.Open() {
			return nil, &InvalidStateError{AlertID: al.ID, Status: al.Status, Op: "merge into"}
		}
		al.OccurrenceCount++
		al.LastSeenAt = now

		detail := fmt.Sprintf("occurrence %d: %s confidence %.2f", al.OccurrenceCount, ev.Kind, ev.Confidence)
		if ev.Explanation != "" {
			detail += ": " + ev.Explanation
		}
		if !al.Severity.AtLeast(cls.Severity) {
			detail += fmt.Sprintf("; severity raised %s->%s", al.Severity, cls.Severity)
			al.Severity = cls.Severity
		}

		return &AuditEntry{
			AlertID:    al.ID,
			Transition: TransitionMerged,
			Actor:      ActorSystem,
			At:         now,
			Detail:     detail,
		}, nil
	}
}

// Acknowledge moves a NEW alert to ACKNOWLEDGED on behalf of staffID.
func (s *Service) Acknowledge(ctx context.Context, alertID, staffID string) (*Alert, error) {
	if staffID == "" {
		return nil, &ValidationError{Field: "staff_id", Reason: "must not be empty"}
	}
	now := s.now()
	al, err := s.store.Mutate(ctx, alertID, func(al *Alert) (*AuditEntry, error) {
		if al.Status != StatusNew {
			return nil, &InvalidStateError{AlertID: al.ID, Status: al.Status, Op: "acknowledge"}
		}
		al.Status = StatusAcknowledged
		al.AcknowledgedBy = staffID
		al.AcknowledgedAt = now
		return &AuditEntry{
			AlertID:    al.ID,
			Transition: TransitionAcknowledged,
			Actor:      staffID,
			At:         now,
		}, nil
	})
	s.countStaffAction("acknowledge", err)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "alert acknowledged", "alert_id", al.ID, "staff", staffID)
	return al, nil
}

// Resolve closes a NEW or ACKNOWLEDGED alert, optionally attaching a note.
// RESOLVED is terminal.
func (s *Service) Resolve(ctx context.Context, alertID, staffID, note string) (*Alert, error) {
	if staffID == "" {
		return nil, &ValidationError{Field: "staff_id", Reason: "must not be empty"}
	}
	now := s.now()
	al, err := s.store.Mutate(ctx, alertID, func(al *Alert) (*AuditEntry, error) {
		if !al.Status.Open() {
			return nil, &InvalidStateError{AlertID: al.ID, Status: al.Status, Op: "resolve"}
		}
		al.Status = StatusResolved
		al.ResolvedBy = staffID
		al.ResolvedAt = now
		if note != "" {
			al.Notes = append(al.Notes, Note{Author: staffID, Text: note, At: now})
		}
		return &AuditEntry{
			AlertID:    al.ID,
			Transition: TransitionResolved,
			Actor:      staffID,
			At:         now,
			Detail:     note,
		}, nil
	})
	s.countStaffAction("resolve", err)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "alert resolved", "alert_id", al.ID, "staff", staffID)
	return al, nil
}

// AddNote appends a staff note. Purely additive and legal in any state,
// including RESOLVED.
func (s *Service) AddNote(ctx context.Context, alertID, staffID, text string) (*Alert, error) {
	if staffID == "" {
		return nil, &ValidationError{Field: "staff_id", Reason: "must not be empty"}
	}
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	now := s.now()
	al, err := s.store.Mutate(ctx, alertID, func(al *Alert) (*AuditEntry, error) {
		al.Notes = append(al.Notes, Note{Author: staffID, Text: text, At: now})
		return &AuditEntry{
			AlertID:    al.ID,
			Transition: TransitionNoteAdded,
			Actor:      staffID,
			At:         now,
		}, nil
	})
	s.countStaffAction("add_note", err)
	if err != nil {
		return nil, err
	}
	return al, nil
}

// Get retrieves one alert.
func (s *Service) Get(ctx context.Context, alertID string) (*Alert, bool, error) {
	return s.store.Get(ctx, alertID)
}

// List returns alerts matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*Alert, error) {
	return s.store.List(ctx, f)
}

// AuditTrail returns the audit entries for an alert in append order.
func (s *Service) AuditTrail(ctx context.Context, alertID string) ([]AuditEntry, error) {
	if _, ok, err := s.store.Get(ctx, alertID); err != nil {
		return nil, err
	} else if !ok {
		return nil, &NotFoundError{AlertID: alertID}
	}
	return s.store.Audit(ctx, alertID)
}

// Summary counts alerts by status and by severity for the staff dashboard.
func (s *Service) Summary(ctx context.Context) (map[string]int, error) {
	alerts, err := s.store.List(ctx, Filter{})
	if err != nil {
		return nil, err
	}
	out := map[string]int{}
	for _, al := range alerts {
		out[string(al.Status)]++
		out[string(al.Severity)]++
	}
	out["total"] = len(alerts)
	return out, nil
}

// Trends returns the suppressed-event aggregates, or nil when trend
// recording is disabled.
func (s *Service) Trends() map[string]int64 {
	if s.trends == nil {
		return nil
	}
	return s.trends.Snapshot()
}

func (s *Service) countIngest(outcome IngestOutcome) {
	if s.metrics != nil {
		s.metrics.IngestsTotal.WithLabelValues(string(outcome)).Inc()
	}
}

func (s *Service) countStaffAction(action string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.metrics.StaffActions.WithLabelValues(action, outcome).Inc()
}
