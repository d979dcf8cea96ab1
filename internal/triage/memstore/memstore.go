// Package memstore provides an in-memory implementation of triage.Store.
// Suitable for dev/testing and single-node pilots.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/Kidomigon/nursing-home-ai/internal/triage"
)

// Store holds alerts and their audit trails in memory. Mutations are
// serialized per alert ID so concurrent staff actions on the same alert
// cannot apply against a stale read.
type Store struct {
	mu     sync.RWMutex
	alerts map[string]*triage.Alert
	audits map[string][]triage.AuditEntry
	locks  map[string]*sync.Mutex // per-alert mutation locks
}

// New initializes an empty in-memory Store.
func New() *Store {
	return &Store{
		alerts: make(map[string]*triage.Alert),
		audits: make(map[string][]triage.AuditEntry),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Create persists a new alert with its CREATED audit entry.
func (s *Store) Create(_ context.Context, al *triage.Alert, entry *triage.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[al.ID]; exists {
		return xerrors.New("memstore: duplicate alert ID " + al.ID)
	}
	s.alerts[al.ID] = copyAlert(al)
	s.audits[al.ID] = append(s.audits[al.ID], *entry)
	s.locks[al.ID] = &sync.Mutex{}
	return nil
}

// Get retrieves an alert by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*triage.Alert, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	al, ok := s.alerts[id]
	if !ok {
		return nil, false, nil
	}
	return copyAlert(al), true, nil
}

// Mutate applies fn to the alert under its per-alert lock and appends the
// returned audit entry in the same critical section.
func (s *Store) Mutate(_ context.Context, id string, fn triage.Mutation) (*triage.Alert, error) {
	s.mu.RLock()
	lock, ok := s.locks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &triage.NotFoundError{AlertID: id}
	}

	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	al := s.alerts[id]
	s.mu.RUnlock()

	cp := copyAlert(al)
	entry, err := fn(cp)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.alerts[id] = cp
	s.audits[id] = append(s.audits[id], *entry)
	s.mu.Unlock()

	return copyAlert(cp), nil
}

// OpenByRoom lists the NEW and ACKNOWLEDGED alerts for a room.
func (s *Store) OpenByRoom(_ context.Context, roomID string) ([]*triage.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*triage.Alert
	for _, al := range s.alerts {
		if al.RoomID == roomID && al.Status.Open() {
			out = append(out, copyAlert(al))
		}
	}
	return out, nil
}

// List returns alerts matching the filter, newest first.
func (s *Store) List(_ context.Context, f triage.Filter) ([]*triage.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*triage.Alert
	for _, al := range s.alerts {
		if f.RoomID != "" && al.RoomID != f.RoomID {
			continue
		}
		if f.Status != "" && al.Status != f.Status {
			continue
		}
		if f.Severity != "" && al.Severity != f.Severity {
			continue
		}
		if !f.Since.IsZero() && al.CreatedAt.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && al.CreatedAt.After(f.Until) {
			continue
		}
		out = append(out, copyAlert(al))
	}
	slices.SortFunc(out, func(a, b *triage.Alert) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Audit returns the audit trail for an alert in append order.
func (s *Store) Audit(_ context.Context, alertID string) ([]triage.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audits[alertID]), nil
}

func copyAlert(al *triage.Alert) *triage.Alert {
	cp := *al
	cp.Notes = slices.Clone(al.Notes)
	return &cp
}
