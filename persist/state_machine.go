package persist

import (
	"errors"
	"io"
)

var (
	ErrSnapshotNotFound = errors.New("persist: snapshot not found")
	ErrNoSnapshot       = errors.New("persist: no snapshot")
)

// StateMachine is the interface an application implements to consume
// committed log entries and to participate in snapshotting. The segmented
// log never calls it directly; it exists so a caller wiring the log and
// the replication engine together has a standard shape to depend on.
type StateMachine interface {
	// Apply is invoked once a log entry is committed.
	Apply([]byte) []byte

	// MakeSnapshot creates a local snapshot covering up through
	// lastIncludedIndex/lastIncludedTerm, with the given configuration.
	// May run concurrently with Apply.
	MakeSnapshot(lastIncludedTerm, lastIncludedIndex uint64, conf *Config) (id string, err error)

	// MakeEmptySnapshot creates an empty snapshot to receive a transferred
	// snapshot from a leader during recovery. Not called concurrently with
	// Apply.
	MakeEmptySnapshot(lastIncludedTerm, lastIncludedIndex uint64, conf *Config) (SnapshotWriter, error)

	// RestoreFromSnapshot restores state from the snapshot with the given
	// id. Not called concurrently with Apply.
	RestoreFromSnapshot(id string) error

	// LastSnapshotInfo returns metadata for the most recent snapshot, or
	// ErrNoSnapshot if none exists.
	LastSnapshotInfo() (*SnapshotMeta, error)

	// AllSnapshotInfo lists metadata for all durable snapshots, highest
	// index first.
	AllSnapshotInfo() ([]*SnapshotMeta, error)

	// OpenSnapshot opens a snapshot for reading by id. Returns
	// ErrSnapshotNotFound if it doesn't exist.
	OpenSnapshot(id string) (*SnapshotMeta, io.ReadCloser, error)

	// DeleteSnapshot removes a snapshot by id. Returns
	// ErrSnapshotNotFound if it doesn't exist.
	DeleteSnapshot(id string) error
}
