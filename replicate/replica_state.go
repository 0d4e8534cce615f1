package replicate

import "sync"

// ReplicaState is one follower's replication progress as tracked by the
// leader: the next index to send, the highest index known durably
// replicated, and the highest index (plus one) currently in flight.
//
// Invariants (enforced by the mutators below, never by the caller):
// matchIndex <= nextIndex-1 <= sendIndex; all three are monotonically
// non-decreasing except on the explicit regression path.
type ReplicaState struct {
	mu         sync.Mutex
	nextIndex  uint64
	matchIndex uint64
	sendIndex  uint64
}

// NewReplicaState seeds progress for a peer at leader-election time:
// nextIndex and sendIndex both start at lastIndex+1, matchIndex at 0.
func NewReplicaState(lastIndex uint64) *ReplicaState {
	return &ReplicaState{
		nextIndex: lastIndex + 1,
		sendIndex: lastIndex + 1,
	}
}

func (r *ReplicaState) NextIndex() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextIndex
}

func (r *ReplicaState) MatchIndex() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchIndex
}

func (r *ReplicaState) SendIndex() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendIndex
}

// MarkSent records that a batch covering (prevIndex, prevIndex+count] was
// just sent, advancing sendIndex to prevIndex+count+1. Uses the
// range-correct form rather than re-maxing against the prior sendIndex:
// drive() only ever sends from the current sendIndex forward, so the new
// value is always the larger one.
func (r *ReplicaState) MarkSent(prevIndex, count uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendIndex = prevIndex + count + 1
}

// AdvanceOnSuccess updates nextIndex and matchIndex after a successful
// AppendEntries covering (prevIndex, prevIndex+count].
func (r *ReplicaState) AdvanceOnSuccess(prevIndex, count uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := prevIndex + count + 1
	if next > r.nextIndex {
		r.nextIndex = next
	}
	match := prevIndex + count
	if match > r.matchIndex {
		r.matchIndex = match
	}
}

// RegressOnFailure clamps nextIndex and sendIndex down to
// min(sendIndex, lastLogIndex+1) after a logical (same-term) rejection,
// per the tie-break rule: the follower cannot be beyond what we last sent
// it, so a reported lastLogIndex at or past sendIndex is not trusted
// verbatim.
func (r *ReplicaState) RegressOnFailure(lastLogIndex uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := lastLogIndex + 1
	if candidate > r.sendIndex {
		candidate = r.sendIndex
	}
	r.nextIndex = candidate
	r.sendIndex = candidate
}

// MarkMatch advances matchIndex directly, used by ping/heartbeat
// completion which carries no entry count.
func (r *ReplicaState) MarkMatch(index uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index > r.matchIndex {
		r.matchIndex = index
	}
}
