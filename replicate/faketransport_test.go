package replicate

import (
	"sync"
	"sync/atomic"

	"github.com/hhkbp3/raftlog/persist"
)

// fakeConsensusState is a minimal in-memory ConsensusState: it tracks
// term, commit index, and stepdown notifications without any election
// logic of its own, in place of a real consensus state machine.
type fakeConsensusState struct {
	mu          sync.Mutex
	term        uint64
	commitIndex uint64
	local       MemberID
	corrID      uint64
	steppedDown bool
	stepTerm    uint64
	stepLeader  MemberID
}

func newFakeConsensusState(local MemberID, term uint64) *fakeConsensusState {
	return &fakeConsensusState{local: local, term: term}
}

func (c *fakeConsensusState) CurrentTerm() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.term
}

func (c *fakeConsensusState) CommitIndex() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commitIndex
}

func (c *fakeConsensusState) SetCommitIndex(index uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitIndex = index
}

func (c *fakeConsensusState) LocalMember() MemberID {
	return c.local
}

func (c *fakeConsensusState) NextCorrelationID() uint64 {
	return atomic.AddUint64(&c.corrID, 1)
}

func (c *fakeConsensusState) TransitionToFollower(term uint64, leader MemberID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steppedDown = true
	c.stepTerm = term
	c.stepLeader = leader
	c.term = term
}

func (c *fakeConsensusState) SteppedDown() (bool, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steppedDown, c.stepTerm
}

// fakeResponder scripts one AppendEntries response.
type fakeResponder func(*AppendEntriesRequest) (*AppendEntriesResponse, error)

// fakeTransport is an in-memory Transport whose responses are entirely
// scripted by the test. Calls beyond the scripted queue default to a
// success response that echoes the batch as fully replicated, so tests
// that only care about one scripted step don't need to script every call.
type fakeTransport struct {
	mu        sync.Mutex
	opened    bool
	closed    bool
	responses []fakeResponder
	calls     []*AppendEntriesRequest
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Open(addr persist.ServerAddr) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = true
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) enqueue(fn fakeResponder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responses = append(t.responses, fn)
}

func (t *fakeTransport) AppendEntries(req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	t.mu.Lock()
	t.calls = append(t.calls, req)
	var fn fakeResponder
	if len(t.responses) > 0 {
		fn = t.responses[0]
		t.responses = t.responses[1:]
	}
	t.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	last := req.PrevLogIndex + uint64(len(req.Entries))
	return &AppendEntriesResponse{Term: req.Term, Succeeded: true, LastLogIndex: last}, nil
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func succeedAt(lastLogIndex uint64) fakeResponder {
	return func(req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
		return &AppendEntriesResponse{Term: req.Term, Succeeded: true, LastLogIndex: lastLogIndex}, nil
	}
}

func failAt(lastLogIndex uint64) fakeResponder {
	return func(req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
		return &AppendEntriesResponse{Term: req.Term, Succeeded: false, LastLogIndex: lastLogIndex}, nil
	}
}

func higherTerm(term uint64) fakeResponder {
	return func(req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
		return &AppendEntriesResponse{Term: term, Succeeded: false}, nil
	}
}
