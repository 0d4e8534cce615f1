package replicate

import (
	"fmt"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set"

	"github.com/hhkbp3/raftlog/logging"
)

// ReplicationGroup fans a leader's commit and ping requests out across one
// Replicator per follower and resolves them once a majority, the leader
// included, agrees. It mirrors the classic Inflight bookkeeping approach
// (per-member match index, majority arithmetic) but recomputes the whole
// majority index on every advance instead of voting entry-by-entry, per
// the commit rule: the (N/2)-th largest matchIndex across all members,
// advanced only when the entry at that index carries the current term.
type ReplicationGroup struct {
	mu        sync.Mutex
	log       LogReader
	consensus ConsensusState
	logger    logging.Logger

	peers       map[MemberID]*Replicator
	members     mapset.Set
	commitIndex uint64
	futures     map[uint64][]*Future
	closed      bool
}

// NewReplicationGroup constructs an empty group. Peers are added with
// AddPeer once the group is created.
func NewReplicationGroup(log LogReader, consensus ConsensusState, logger logging.Logger) *ReplicationGroup {
	return &ReplicationGroup{
		log:       log,
		consensus: consensus,
		logger:    logger,
		peers:     make(map[MemberID]*Replicator),
		members:   mapset.NewThreadUnsafeSet(),
		futures:   make(map[uint64][]*Future),
	}
}

// AddPeer wires r's progress notifications into this group's majority
// computation and opens its transport. On Open failure the peer is not
// added.
func (g *ReplicationGroup) AddPeer(r *Replicator) error {
	g.mu.Lock()
	if _, exists := g.peers[r.Member()]; exists {
		g.mu.Unlock()
		return fmt.Errorf("replicate: member %s already in group", r.Member())
	}
	g.peers[r.Member()] = r
	g.members.Add(r.Member())
	g.mu.Unlock()

	r.SetOnAdvance(func() { g.recompute() })
	if err := r.Open(); err != nil {
		g.mu.Lock()
		delete(g.peers, r.Member())
		g.members.Remove(r.Member())
		g.mu.Unlock()
		g.logger.Error("failed to open replicator for member %s: %v", r.Member(), err)
		return err
	}
	g.logger.Info("added member %s to replication group", r.Member())
	g.recompute()
	return nil
}

// RemovePeer closes and forgets member, e.g. once a membership-change
// entry removing it has committed. A no-op if member is not in the group.
func (g *ReplicationGroup) RemovePeer(member MemberID) error {
	g.mu.Lock()
	r, ok := g.peers[member]
	if !ok {
		g.mu.Unlock()
		return nil
	}
	delete(g.peers, member)
	g.members.Remove(member)
	g.mu.Unlock()

	err := r.Close()
	g.recompute()
	return err
}

// Members returns the current peer set, leader excluded.
func (g *ReplicationGroup) Members() mapset.Set {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members.Clone()
}

// CommitIndex returns the group's current commit index.
func (g *ReplicationGroup) CommitIndex() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.commitIndex
}

// Commit returns a future that resolves once index is known replicated to
// a majority of the group (the leader's own log counting as its vote) at
// the current term. Every peer is nudged to replicate up to index; the
// group's own bookkeeping, not the per-peer futures, is what resolves the
// returned future.
func (g *ReplicationGroup) Commit(index uint64) *Future {
	f := newFuture()

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		f.resolve(0, ErrClosed)
		return f
	}
	if index <= g.commitIndex {
		g.mu.Unlock()
		f.resolve(index, nil)
		return f
	}
	g.futures[index] = append(g.futures[index], f)
	peers := g.peerSnapshot()
	g.mu.Unlock()

	for _, r := range peers {
		r.Commit(index)
	}
	return f
}

// Ping broadcasts a heartbeat to every peer and resolves once a majority
// (leader included) answer successfully at the current term, or fails
// with ErrTransport once every peer has answered without a majority. A
// higher term observed by any peer's Replicator triggers that Replicator's
// own stepdown and fails this future with ErrNotLeader, unless a majority
// had already answered.
func (g *ReplicationGroup) Ping() *Future {
	f := newFuture()

	g.mu.Lock()
	peers := g.peerSnapshot()
	g.mu.Unlock()

	total := len(peers) + 1
	majority := total/2 + 1

	var mu sync.Mutex
	successes := 1 // the leader counts itself without a round trip
	resolved := false
	maybeResolve := func() {
		if !resolved && successes >= majority {
			resolved = true
			f.resolve(0, nil)
		}
	}

	mu.Lock()
	maybeResolve()
	mu.Unlock()

	if len(peers) == 0 {
		return f
	}

	var wg sync.WaitGroup
	wg.Add(len(peers))
	for _, r := range peers {
		r := r
		go func() {
			defer wg.Done()
			_, err := r.Ping().Wait()
			mu.Lock()
			if err == nil {
				successes++
				maybeResolve()
			} else if err == ErrNotLeader && !resolved {
				resolved = true
				f.resolve(0, ErrNotLeader)
			}
			mu.Unlock()
		}()
	}
	go func() {
		wg.Wait()
		mu.Lock()
		if !resolved {
			resolved = true
			f.resolve(0, ErrTransport)
		}
		mu.Unlock()
	}()

	return f
}

// Close closes every peer and fails any outstanding commit futures.
func (g *ReplicationGroup) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	peers := g.peerSnapshot()
	futures := g.futures
	g.futures = make(map[uint64][]*Future)
	g.mu.Unlock()

	for idx, fs := range futures {
		for _, f := range fs {
			f.resolve(idx, ErrClosed)
		}
	}

	var firstErr error
	for _, r := range peers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// peerSnapshot returns the current peers as a slice. Caller must hold mu.
func (g *ReplicationGroup) peerSnapshot() []*Replicator {
	peers := make([]*Replicator, 0, len(g.peers))
	for _, r := range g.peers {
		peers = append(peers, r)
	}
	return peers
}

// recompute implements the majority commit rule: take every member's
// matchIndex (the leader's own being the log's last index), sort
// descending, and read off the value at the majority-size-th position. If
// the entry at that index was written in the current term, the commit
// index advances to it and every future waiting at or below the new
// commit index resolves. An index whose entry predates the current term
// never advances the commit index on its own; it only does so once a
// current-term entry at a higher index has itself reached majority, per
// the standard Raft commit-safety rule.
func (g *ReplicationGroup) recompute() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	matches := make([]uint64, 0, len(g.peers)+1)
	matches = append(matches, g.log.LastIndex())
	for _, r := range g.peers {
		matches = append(matches, r.State().MatchIndex())
	}
	currentCommit := g.commitIndex
	g.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })
	majoritySize := len(matches)/2 + 1
	candidate := matches[majoritySize-1]

	if candidate <= currentCommit {
		return
	}

	entry, err := g.log.Get(candidate)
	if err != nil || entry == nil {
		return
	}
	if entry.Term != g.consensus.CurrentTerm() {
		g.logger.Debug("majority index %d predates current term (entry term %d), holding commit at %d", candidate, entry.Term, currentCommit)
		return
	}

	g.logger.Info("advancing commit index to %d", candidate)
	g.advanceCommitIndex(candidate)
}

func (g *ReplicationGroup) advanceCommitIndex(index uint64) {
	g.mu.Lock()
	if index <= g.commitIndex {
		g.mu.Unlock()
		return
	}
	g.commitIndex = index
	toResolve := make(map[uint64][]*Future)
	for idx, fs := range g.futures {
		if idx <= index {
			toResolve[idx] = fs
			delete(g.futures, idx)
		}
	}
	g.mu.Unlock()

	for idx, fs := range toResolve {
		for _, f := range fs {
			f.resolve(idx, nil)
		}
	}
}
