package replicate

import (
	"sync"

	hsm "github.com/hhkbp2/go-hsm"

	"github.com/hhkbp3/raftlog/logging"
	"github.com/hhkbp3/raftlog/persist"
)

// BatchSize caps the number of entries drive() gathers into one
// AppendEntries request.
const BatchSize = 100

// Future is a handle to a pending Ping or Commit result. The zero value is
// not usable; obtain one from Replicator.Ping or Replicator.Commit.
type Future struct {
	done  chan struct{}
	index uint64
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(index uint64, err error) {
	select {
	case <-f.done:
		return // already resolved; resolving twice is a caller bug we tolerate
	default:
	}
	f.index, f.err = index, err
	close(f.done)
}

// Wait blocks until the future resolves and returns its index and error.
func (f *Future) Wait() (uint64, error) {
	<-f.done
	return f.index, f.err
}

// replicatorHSM is the go-hsm wrapper around one Replicator: a private
// state tree (Idle/InFlight/Closed) driven by a single mailbox goroutine,
// the same shape as a per-peer actor.
type replicatorHSM struct {
	*hsm.StdHSM
	DispatchChan     chan hsm.Event
	SelfDispatchChan chan hsm.Event
	group            sync.WaitGroup
	r                *Replicator
}

func (h *replicatorHSM) Init() {
	h.StdHSM.Init2(h, hsm.NewStdEvent(hsm.EventInit))
	h.group.Add(1)
	go h.loop()
}

func (h *replicatorHSM) loop() {
	defer h.group.Done()
	for {
		select {
		case event := <-h.SelfDispatchChan:
			h.StdHSM.Dispatch2(h, event)
			if event.Type() == eventClose {
				return
			}
		case event := <-h.DispatchChan:
			h.StdHSM.Dispatch2(h, event)
		}
	}
}

func (h *replicatorHSM) Dispatch(event hsm.Event) {
	h.DispatchChan <- event
}

func (h *replicatorHSM) SelfDispatch(event hsm.Event) {
	h.SelfDispatchChan <- event
}

func (h *replicatorHSM) QTran(targetStateID string) {
	target := h.StdHSM.LookupState(targetStateID)
	h.StdHSM.QTranHSM(h, target)
}

// Replicator pipelines replication to one follower: it batches entries out
// of a LogReader, tracks that peer's ReplicaState, and resolves Commit/Ping
// futures as responses arrive. Every mutation of its progress and future
// maps is serialized through its own mailbox goroutine.
type Replicator struct {
	member    MemberID
	addr      persist.ServerAddr
	transport Transport
	log       LogReader
	consensus ConsensusState
	state     *ReplicaState
	logger    logging.Logger

	hsmImpl *replicatorHSM

	mu             sync.Mutex
	opened         bool
	closed         bool
	steppedDown    bool
	pingInFlight   bool
	appendInFlight bool
	pendingPings   []*Future
	commitFutures  map[uint64][]*Future
	currentStateID string

	// onAdvance, if set, is invoked (on the mailbox goroutine, so it must
	// not block or call back into the Replicator) whenever matchIndex or
	// the current term may have changed. ReplicationGroup uses it to
	// recompute the cluster-wide majority index without polling.
	onAdvance func()
}

// SetOnAdvance installs the callback a ReplicationGroup uses to learn of
// matchIndex/term changes. Must be called before Open.
func (r *Replicator) SetOnAdvance(fn func()) {
	r.onAdvance = fn
}

// NewReplicator constructs a Replicator for member at addr, seeding its
// ReplicaState at the start of the log (nextIndex and sendIndex 1,
// matchIndex 0), so the first Commit drives batches from index 1 and a
// new peer is brought up to date from the first entry.
func NewReplicator(member MemberID, addr persist.ServerAddr, transport Transport, log LogReader, consensus ConsensusState, logger logging.Logger) *Replicator {
	return &Replicator{
		member:        member,
		addr:          addr,
		transport:     transport,
		log:           log,
		consensus:     consensus,
		state:         NewReplicaState(0),
		logger:        logger,
		commitFutures: make(map[uint64][]*Future),
	}
}

// State exposes the peer's current progress, read-only.
func (r *Replicator) State() *ReplicaState {
	return r.state
}

// Member returns the peer's member id.
func (r *Replicator) Member() MemberID {
	return r.member
}

// Open connects the transport and starts the mailbox goroutine. On
// transport failure the Replicator remains un-opened and every operation
// fails with ErrNotOpen.
func (r *Replicator) Open() error {
	if err := r.transport.Open(r.addr); err != nil {
		return err
	}

	top := hsm.NewTop()
	initial := hsm.NewInitial(top, stateIdleID)
	newIdleState(top)
	newInFlightState(top)
	newClosedState(top)

	h := &replicatorHSM{
		StdHSM:           hsm.NewStdHSM(HSMTypeReplicator, top, initial),
		DispatchChan:     make(chan hsm.Event, 64),
		SelfDispatchChan: make(chan hsm.Event, 64),
	}
	h.r = r
	h.Init()

	r.mu.Lock()
	r.hsmImpl = h
	r.opened = true
	r.currentStateID = stateIdleID
	r.mu.Unlock()
	return nil
}

func (r *Replicator) isOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened && !r.closed
}

// Ping requests a heartbeat round trip and returns a future of the
// resulting matchIndex. Concurrent pings coalesce onto one outstanding
// heartbeat.
func (r *Replicator) Ping() *Future {
	f := newFuture()
	if !r.isOpen() {
		f.resolve(0, ErrNotOpen)
		return f
	}
	r.hsmImpl.Dispatch(newPingEvent(f))
	return f
}

// Commit returns a future that resolves once matchIndex reaches index, or
// fails with the error surfaced by the request responsible for it.
func (r *Replicator) Commit(index uint64) *Future {
	f := newFuture()
	if !r.isOpen() {
		f.resolve(0, ErrNotOpen)
		return f
	}
	r.hsmImpl.Dispatch(newCommitEvent(index, f))
	return f
}

// Close fails every outstanding future with ErrClosed, stops the mailbox,
// and releases the transport.
func (r *Replicator) Close() error {
	r.mu.Lock()
	if !r.opened || r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	h := r.hsmImpl
	r.mu.Unlock()

	h.SelfDispatch(newCloseEvent())
	h.group.Wait()
	return r.transport.Close()
}

func (r *Replicator) doClose() {
	r.failAllFutures(ErrClosed)
}

func (r *Replicator) isSteppedDown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steppedDown
}

// beginPing builds and sends a heartbeat if none is currently outstanding;
// otherwise the future is coalesced onto the in-flight one. Once stepped
// down a Replicator no longer has a term worth pinging with, so new pings
// fail immediately rather than racing a new request against the owning
// node's teardown.
func (r *Replicator) beginPing(f *Future) {
	if r.isSteppedDown() {
		f.resolve(0, ErrNotLeader)
		return
	}
	r.mu.Lock()
	r.pendingPings = append(r.pendingPings, f)
	if r.pingInFlight {
		r.mu.Unlock()
		return
	}
	r.pingInFlight = true
	r.mu.Unlock()

	prevIndex := r.state.MatchIndex()
	prevTerm := r.termAt(prevIndex)
	req := &AppendEntriesRequest{
		CorrelationID: r.consensus.NextCorrelationID(),
		Term:          r.consensus.CurrentTerm(),
		Leader:        r.consensus.LocalMember(),
		PrevLogIndex:  prevIndex,
		PrevLogTerm:   prevTerm,
		LeaderCommit:  r.consensus.CommitIndex(),
	}
	go func() {
		resp, err := r.transport.AppendEntries(req)
		r.hsmImpl.SelfDispatch(newRPCResultEvent(rpcKindPing, 0, 0, resp, err))
	}()
}

// handleCommit implements the commit() contract: resolve immediately if
// already replicated, else register the future and kick drive() if this
// index is beyond anything currently in flight.
func (r *Replicator) handleCommit(index uint64, f *Future) {
	if index <= r.state.MatchIndex() {
		f.resolve(index, nil)
		return
	}
	if r.isSteppedDown() {
		f.resolve(index, ErrNotLeader)
		return
	}
	r.mu.Lock()
	r.commitFutures[index] = append(r.commitFutures[index], f)
	alreadyAppending := r.appendInFlight
	r.mu.Unlock()

	if index >= r.state.SendIndex() && !alreadyAppending {
		r.drive()
	}
}

// drive builds and sends the next AppendEntries batch starting at
// sendIndex. A type-snapshot entry always travels alone: if the batch
// accumulated so far is non-empty when one is encountered, the
// accumulated batch is sent first and the snapshot waits for the next
// drive() cycle.
func (r *Replicator) drive() {
	prevIndex := r.state.SendIndex() - 1
	prevTerm := r.termAt(prevIndex)

	sendIndex := r.state.SendIndex()
	last := r.log.LastIndex()
	if sendIndex > last {
		r.mu.Lock()
		r.appendInFlight = false
		r.mu.Unlock()
		return
	}

	hi := sendIndex + BatchSize
	if hi > last+1 {
		hi = last + 1
	}

	entries := make([]*persist.Entry, 0, hi-sendIndex)
	for i := sendIndex; i < hi; i++ {
		entry, err := r.log.Get(i)
		if err != nil {
			break
		}
		if entry == nil {
			continue
		}
		if entry.Type == persist.EntrySnapshot {
			if len(entries) > 0 {
				break
			}
			entries = append(entries, entry)
			break
		}
		entries = append(entries, entry)
	}

	count := uint64(len(entries))
	r.state.MarkSent(prevIndex, count)

	req := &AppendEntriesRequest{
		CorrelationID: r.consensus.NextCorrelationID(),
		Term:          r.consensus.CurrentTerm(),
		Leader:        r.consensus.LocalMember(),
		PrevLogIndex:  prevIndex,
		PrevLogTerm:   prevTerm,
		Entries:       entries,
		LeaderCommit:  r.consensus.CommitIndex(),
	}

	r.mu.Lock()
	r.appendInFlight = true
	r.mu.Unlock()

	go func() {
		resp, err := r.transport.AppendEntries(req)
		r.hsmImpl.SelfDispatch(newRPCResultEvent(rpcKindAppend, prevIndex, count, resp, err))
	}()
}

func (r *Replicator) termAt(index uint64) uint64 {
	if index == 0 {
		return 0
	}
	entry, err := r.log.Get(index)
	if err != nil || entry == nil {
		return 0
	}
	return entry.Term
}

// handleResult processes one AppendEntries round trip, whether it was a
// heartbeat or a batch. Results arriving after stepdown or close are
// discarded; their requests were already failed or superseded.
func (r *Replicator) handleResult(e *rpcResultEvent) {
	r.mu.Lock()
	discard := r.steppedDown || r.closed
	r.mu.Unlock()
	if discard {
		return
	}

	if e.err != nil {
		r.logger.Warning("member %s: rpc failed: %v", r.member, e.err)
		if e.kind == rpcKindPing {
			r.resolvePendingPings(0, ErrTransport)
			r.mu.Lock()
			r.pingInFlight = false
			r.mu.Unlock()
		} else {
			r.failCommitRange(e.prevIndex, e.count, ErrTransport)
			r.mu.Lock()
			r.appendInFlight = false
			r.mu.Unlock()
		}
		return
	}

	resp := e.response
	if resp.Term > r.consensus.CurrentTerm() {
		r.logger.Info("member %s: observed higher term %d, stepping down", r.member, resp.Term)
		r.stepdown(resp.Term)
		return
	}

	if e.kind == rpcKindPing {
		if resp.Succeeded {
			r.state.MarkMatch(resp.LastLogIndex)
			r.resolvePendingPings(r.state.MatchIndex(), nil)
		} else {
			r.logger.Debug("member %s: heartbeat rejected, lastLogIndex=%d", r.member, resp.LastLogIndex)
			r.resolvePendingPings(0, ErrTransport)
		}
		r.mu.Lock()
		r.pingInFlight = false
		r.mu.Unlock()
		r.notifyAdvance()
		return
	}

	if resp.Succeeded {
		r.state.AdvanceOnSuccess(e.prevIndex, e.count)
		r.resolveUpTo(r.state.MatchIndex())
	} else {
		r.logger.Debug("member %s: append rejected, regressing to lastLogIndex=%d", r.member, resp.LastLogIndex)
		r.state.RegressOnFailure(resp.LastLogIndex)
	}
	r.mu.Lock()
	r.appendInFlight = false
	r.mu.Unlock()
	r.notifyAdvance()

	if r.state.SendIndex() <= r.log.LastIndex() {
		r.drive()
	}
}

func (r *Replicator) notifyAdvance() {
	if r.onAdvance != nil {
		r.onAdvance()
	}
}

func (r *Replicator) stepdown(term uint64) {
	r.mu.Lock()
	r.steppedDown = true
	r.pingInFlight = false
	r.appendInFlight = false
	r.mu.Unlock()
	r.consensus.TransitionToFollower(term, "")
	r.failAllFutures(ErrNotLeader)
	r.notifyAdvance()
}

func (r *Replicator) resolvePendingPings(matchIndex uint64, err error) {
	r.mu.Lock()
	pings := r.pendingPings
	r.pendingPings = nil
	r.mu.Unlock()
	for _, f := range pings {
		f.resolve(matchIndex, err)
	}
}

// resolveUpTo resolves every pending commit future whose index is now
// covered by matchIndex. matchIndex only ever increases, so any future
// registered below it is, by construction, for an index already
// replicated.
func (r *Replicator) resolveUpTo(matchIndex uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for idx, futures := range r.commitFutures {
		if idx > matchIndex {
			continue
		}
		for _, f := range futures {
			f.resolve(idx, nil)
		}
		delete(r.commitFutures, idx)
	}
}

func (r *Replicator) failCommitRange(prevIndex, count uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for idx, futures := range r.commitFutures {
		if idx <= prevIndex || idx > prevIndex+count {
			continue
		}
		for _, f := range futures {
			f.resolve(idx, err)
		}
		delete(r.commitFutures, idx)
	}
}

func (r *Replicator) failAllFutures(err error) {
	r.mu.Lock()
	futures := r.commitFutures
	r.commitFutures = make(map[uint64][]*Future)
	pings := r.pendingPings
	r.pendingPings = nil
	r.mu.Unlock()

	for idx, fs := range futures {
		for _, f := range fs {
			f.resolve(idx, err)
		}
	}
	for _, f := range pings {
		f.resolve(0, err)
	}
}

// syncHSMState transitions between Idle and InFlight once the set of
// outstanding requests becomes empty or non-empty, purely for
// observability of a Replicator's status; neither state gates which
// events are accepted.
func (r *Replicator) syncHSMState(h *replicatorHSM) {
	r.mu.Lock()
	target := stateIdleID
	if r.pingInFlight || r.appendInFlight {
		target = stateInFlightID
	}
	changed := target != r.currentStateID
	if changed {
		r.currentStateID = target
	}
	r.mu.Unlock()
	if changed {
		h.QTran(target)
	}
}
