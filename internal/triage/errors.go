package triage

import "fmt"

// UnknownRoomError reports a room with no resident mapping. The caller sees
// it directly; the engine never retries it.
type UnknownRoomError struct {
	RoomID string
}

func (e *UnknownRoomError) Error() string {
	return fmt.Sprintf("unknown room %q: no resident mapping", e.RoomID)
}

// InvalidStateError reports an illegal lifecycle transition, e.g. resolving
// an already resolved alert. It carries the current status so callers can
// show a concrete reason instead of a generic failure.
type InvalidStateError struct {
	AlertID string
	Status  Status
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s alert %s: status is %s", e.Op, e.AlertID, e.Status)
}

// NotFoundError reports an alert ID with no record.
type NotFoundError struct {
	AlertID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alert %s not found", e.AlertID)
}

// StorageUnavailableError wraps a persistence or audit-write failure. The
// triggering operation is reported as failed even if a partial write
// occurred; no state change is ever reported as successful without a durable
// audit entry.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}
