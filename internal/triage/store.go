package triage

import (
	"context"
	"time"
)

// Filter selects alerts for list queries. Zero-valued fields match anything.
type Filter struct {
	RoomID   string
	Status   Status
	Severity Severity
	Since    time.Time
	Until    time.Time
}

// Mutation applies an in-place change to an alert under the store's
// per-alert exclusion and returns the single audit entry the change
// produces. Returning an error aborts the mutation with nothing persisted;
// domain errors (e.g. *InvalidStateError) pass through to the caller as-is.
type Mutation func(al *Alert) (*AuditEntry, error)

// Store is the persistence boundary for alerts and their audit trail. It is
// the only component that mutates alert state.
//
// Implementations must serialize Mutate calls per alert ID and persist the
// updated record together with its audit entry atomically: a state change
// whose audit entry cannot be durably written must fail. Infrastructure
// failures are reported as *StorageUnavailableError.
type Store interface {
	// Create persists a new alert with its CREATED audit entry.
	Create(ctx context.Context, al *Alert, entry *AuditEntry) error

	// Get retrieves an alert by ID.
	Get(ctx context.Context, id string) (*Alert, bool, error)

	// Mutate applies fn to the alert under per-alert exclusion and persists
	// the result with its audit entry. Returns *NotFoundError for unknown
	// IDs and the updated alert on success.
	Mutate(ctx context.Context, id string, fn Mutation) (*Alert, error)

	// OpenByRoom lists the NEW and ACKNOWLEDGED alerts for a room, for the
	// deduplication window.
	OpenByRoom(ctx context.Context, roomID string) ([]*Alert, error)

	// List returns alerts matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*Alert, error)

	// Audit returns the audit trail for an alert in append order.
	Audit(ctx context.Context, alertID string) ([]AuditEntry, error)
}
