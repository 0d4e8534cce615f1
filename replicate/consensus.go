package replicate

import "github.com/hhkbp3/raftlog/persist"

// MemberID identifies one cluster member, opaque to this package.
type MemberID string

// ConsensusState is the capability handle a Replicator holds back to the
// shared consensus record it does not own. It is deliberately narrow: a
// Replicator may read the term and commit index, and may request a
// stepdown, but never reaches back into the owning node's full state.
// This breaks the natural cyclic reference between a Replicator and the
// object that owns it (see design notes on ReplicationGroup membership).
type ConsensusState interface {
	// CurrentTerm returns the locally known term.
	CurrentTerm() uint64

	// CommitIndex returns the locally known commit index.
	CommitIndex() uint64

	// LocalMember returns this node's own member id, used as the leader
	// field of outgoing AppendEntries requests.
	LocalMember() MemberID

	// NextCorrelationID returns a fresh, monotonically increasing
	// correlation id for the next outgoing request.
	NextCorrelationID() uint64

	// TransitionToFollower is invoked exactly once per stepdown: it
	// records the newly observed term, clears leader status, and moves
	// the owning node to the Follower state. Idempotent beyond the first
	// call for a given term.
	TransitionToFollower(term uint64, leader MemberID)
}

// LogReader is the read-only view of the segmented log a Replicator needs
// to build AppendEntries batches. It never writes to the log.
type LogReader interface {
	LastIndex() uint64
	Get(index uint64) (*persist.Entry, error)
}
