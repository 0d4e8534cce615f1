package replicate

import (
	hsm "github.com/hhkbp2/go-hsm"
)

const (
	stateIdleID     = "idle"
	stateInFlightID = "inflight"
	stateClosedID   = "closed"
)

// HSMTypeReplicator distinguishes this package's state machines from any
// other go-hsm tree built in the same process.
const HSMTypeReplicator = hsm.HSMTypeStd + 10

// idleState and inFlightState both accept the same event set: ping,
// commit, and rpc results all arrive regardless of whether a ping and an
// append happen to already be outstanding (they are tracked
// independently, see Replicator.syncHSMState). The two states exist to
// make a Replicator's outstanding-request status observable, not to gate
// which events are legal.
type idleState struct {
	*hsm.StateHead
}

func newIdleState(super hsm.State) *idleState {
	object := &idleState{StateHead: hsm.NewStateHead(super)}
	super.AddChild(object)
	return object
}

func (*idleState) ID() string { return stateIdleID }

func (s *idleState) Handle(sm hsm.HSM, event hsm.Event) hsm.State {
	return handleReplicatorEvent(sm, event, s.Super())
}

type inFlightState struct {
	*hsm.StateHead
}

func newInFlightState(super hsm.State) *inFlightState {
	object := &inFlightState{StateHead: hsm.NewStateHead(super)}
	super.AddChild(object)
	return object
}

func (*inFlightState) ID() string { return stateInFlightID }

func (s *inFlightState) Handle(sm hsm.HSM, event hsm.Event) hsm.State {
	return handleReplicatorEvent(sm, event, s.Super())
}

type closedState struct {
	*hsm.StateHead
}

func newClosedState(super hsm.State) *closedState {
	object := &closedState{StateHead: hsm.NewStateHead(super)}
	super.AddChild(object)
	return object
}

func (*closedState) ID() string { return stateClosedID }

// Handle in the closed state discards everything: close() already failed
// every outstanding future, and no further transport requests are sent.
func (s *closedState) Handle(sm hsm.HSM, event hsm.Event) hsm.State {
	switch e := event.(type) {
	case *pingEvent:
		e.future.resolve(0, ErrClosed)
	case *commitEvent:
		e.future.resolve(e.index, ErrClosed)
	}
	return nil
}

// handleReplicatorEvent is shared by idleState and inFlightState: it
// dispatches to the Replicator's business logic and then lets the
// Replicator decide whether to transition between Idle and InFlight.
func handleReplicatorEvent(sm hsm.HSM, event hsm.Event, super hsm.State) hsm.State {
	h, ok := sm.(*replicatorHSM)
	hsm.AssertTrue(ok)

	switch e := event.(type) {
	case *pingEvent:
		h.r.beginPing(e.future)
		h.r.syncHSMState(h)
		return nil
	case *commitEvent:
		h.r.handleCommit(e.index, e.future)
		h.r.syncHSMState(h)
		return nil
	case *rpcResultEvent:
		h.r.handleResult(e)
		h.r.syncHSMState(h)
		return nil
	case *closeEvent:
		h.r.doClose()
		h.QTran(stateClosedID)
		return nil
	}
	return super
}
