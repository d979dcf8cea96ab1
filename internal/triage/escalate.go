package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// SchedulerConfig sets the escalation cadence per severity tier.
type SchedulerConfig struct {
	// Interval is the poll cadence of the scheduler loop.
	Interval time.Duration
	// EmergencyDeadline is how long an EMERGENCY alert may sit NEW before
	// each escalation.
	EmergencyDeadline time.Duration
	// UrgentDeadline is the same for URGENT alerts.
	UrgentDeadline time.Duration
	// MaxEscalations caps repeat escalations per alert; 0 means unlimited,
	// with every pass still audited so persistent non-response stays
	// visible in the trail.
	MaxEscalations int
}

// Scheduler re-notifies unacknowledged high-severity alerts after their
// response deadline. Due escalations are recomputed from persisted fields on
// every sweep, never from in-memory timers, so a restart cannot lose one.
// Deadlines run from created_at and last_escalated_at; the last-seen marker
// only feeds the escalation detail, so repeated signals from the room never
// push the deadline out.
// Multiple scheduler instances are safe: the state check inside the store
// mutation turns a lost race into a silent skip.
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	cfg        SchedulerConfig
	metrics    *Metrics
	logger     log.Logger
	now        func() time.Time
}

// NewScheduler wires the escalation scheduler. dispatcher and metrics may be
// nil.
func NewScheduler(store Store, dispatcher Dispatcher, cfg SchedulerConfig, metrics *Metrics, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Nop()
	}
	if dispatcher == nil {
		dispatcher = nopDispatcher{}
	}
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Run polls until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "escalation scheduler started",
		"interval", s.cfg.Interval,
		"emergency_deadline", s.cfg.EmergencyDeadline,
		"urgent_deadline", s.cfg.UrgentDeadline,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "escalation scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error(ctx, err, "escalation sweep failed")
			}
		}
	}
}

// Sweep escalates every NEW high-severity alert whose deadline has elapsed.
// Returns how many alerts were escalated.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	alerts, err := s.store.List(ctx, Filter{Status: StatusNew})
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, al := range alerts {
		deadline, ok := s.deadlineFor(al.Severity)
		if !ok {
			continue
		}
		if !s.due(al, deadline) {
			continue
		}

		updated, err := s.store.Mutate(ctx, al.ID, s.escalate(deadline))
		if err != nil {
			// Acknowledged, resolved, or escalated by a concurrent sweep in
			// the meantime: nothing to do.
			if lostMergeRace(err) || errors.Is(err, errNotDue) {
				continue
			}
			return escalated, err
		}

		escalated++
		if s.metrics != nil {
			s.metrics.EscalationsTotal.WithLabelValues(string(updated.Severity)).Inc()
		}
		s.logger.Warn(ctx, "alert escalated",
			"alert_id", updated.ID,
			"room", updated.RoomID,
			"severity", updated.Severity,
			"escalation_count", updated.EscalationCount,
			"age", s.now().Sub(updated.CreatedAt).Truncate(time.Second),
			"last_seen", updated.LastSeenAt,
		)

		s.dispatcher.Dispatch(updated, TransitionEscalated)
	}
	return escalated, nil
}

func (s *Scheduler) deadlineFor(sev Severity) (time.Duration, bool) {
	switch sev {
	case SeverityEmergency:
		return s.cfg.EmergencyDeadline, true
	case SeverityUrgent:
		return s.cfg.UrgentDeadline, true
	}
	return 0, false
}

// due recomputes the escalation deadline from persisted timestamps.
func (s *Scheduler) due(al *Alert, deadline time.Duration) bool {
	if s.cfg.MaxEscalations > 0 && al.EscalationCount >= s.cfg.MaxEscalations {
		return false
	}
	basis := al.CreatedAt
	if !al.LastEscalatedAt.IsZero() {
		basis = al.LastEscalatedAt
	}
	return s.now().Sub(basis) >= deadline
}

// errNotDue aborts an escalation mutation whose alert was already escalated
// by a concurrent sweep.
var errNotDue = errors.New("escalation not due")

func (s *Scheduler) escalate(deadline time.Duration) Mutation {
	now := s.now()
	return func(al *Alert) (*AuditEntry, error) {
		// Recheck under the store's exclusion: the alert may have been
		// acknowledged or escalated since the sweep listed it.
		if al.Status != StatusNew {
			return nil, &InvalidStateError{AlertID: al.ID, Status: al.Status, Op: "escalate"}
		}
		if !s.due(al, deadline) {
			return nil, errNotDue
		}

		al.EscalationCount++
		al.LastEscalatedAt = now
		return &AuditEntry{
			AlertID:    al.ID,
			Transition: TransitionEscalated,
			Actor:      ActorSystem,
			At:         now,
			Detail: fmt.Sprintf("unacknowledged for %s, last signal %s ago, escalation %d",
				now.Sub(al.CreatedAt).Truncate(time.Second),
				now.Sub(al.LastSeenAt).Truncate(time.Second),
				al.EscalationCount),
		}, nil
	}
}
