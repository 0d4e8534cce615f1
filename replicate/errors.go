package replicate

import "errors"

// Error kinds surfaced by the replication engine.
var (
	// ErrNotOpen is returned for any operation attempted before open()
	// succeeds, or after it fails.
	ErrNotOpen = errors.New("replicate: replicator not open")

	// ErrNotLeader is returned to pending futures once a higher term is
	// observed and the replicator's owner steps down.
	ErrNotLeader = errors.New("replicate: stepped down, not leader")

	// ErrClosed is returned to pending futures when the replicator is
	// closed.
	ErrClosed = errors.New("replicate: replicator closed")

	// ErrTransport is reported to a future whose request failed at the
	// transport layer or whose heartbeat the follower rejected, and by
	// ReplicationGroup.Ping when no majority answered. The underlying
	// transport error is logged, not wrapped. Retry, if any, is the
	// caller's decision.
	ErrTransport = errors.New("replicate: transport error")
)
