// Package rooms maps room identifiers to opaque resident references for
// audit attribution. The mapping is owned by the facility admin collaborator;
// the engine only consumes it and never stores resident PII.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Static is an immutable room -> resident-ref directory.
type Static struct {
	byRoom map[string]string
}

// NewStatic builds a directory from an in-memory mapping.
func NewStatic(mapping map[string]string) *Static {
	byRoom := make(map[string]string, len(mapping))
	for room, ref := range mapping {
		byRoom[room] = ref
	}
	return &Static{byRoom: byRoom}
}

// LoadFile reads a JSON object of room -> resident-ref pairs,
// e.g. {"204": "res-0017", "205": "res-0023"}.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("rooms: read %s: %w", path, err)
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("rooms: parse %s: %w", path, err)
	}
	if len(mapping) == 0 {
		return nil, fmt.Errorf("rooms: %s contains no rooms", path)
	}
	return NewStatic(mapping), nil
}

// Resident implements triage.RoomDirectory.
func (s *Static) Resident(_ context.Context, roomID string) (string, bool, error) {
	ref, ok := s.byRoom[roomID]
	return ref, ok, nil
}

// Len reports how many rooms are mapped.
func (s *Static) Len() int {
	return len(s.byRoom)
}
