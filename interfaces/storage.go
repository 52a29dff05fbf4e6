package interfaces

import (
	"errors"
	"time"
)

// ErrSnapshotNotFound is returned when no snapshot exists for an entity
var ErrSnapshotNotFound = errors.New("snapshot not found")

// EntitySnapshot is the refreshed attribute view of one listener or
// connector as handed back to the management layer. Snapshots are keyed by
// Kind and ID; Name is informational since entity names may be empty or
// repeat.
type EntitySnapshot struct {
	Kind       string            `cbor:"1,keyasint"`
	Name       string            `cbor:"2,keyasint,omitempty"`
	Attributes map[string]string `cbor:"3,keyasint"`
	UpdatedAt  time.Time         `cbor:"4,keyasint"`
	ID         string            `cbor:"5,keyasint"`
}

// SnapshotStore persists refreshed entity snapshots
type SnapshotStore interface {
	Put(snapshot EntitySnapshot) error
	Get(kind, id string) (EntitySnapshot, error)
	Delete(kind, id string) error
	List() ([]EntitySnapshot, error)
	Close() error
}
