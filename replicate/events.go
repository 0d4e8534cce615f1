package replicate

import hsm "github.com/hhkbp2/go-hsm"

// Internal event types dispatched onto a Replicator's own mailbox.
const (
	eventPing hsm.EventType = hsm.EventUser + 1 + iota
	eventCommit
	eventRPCResult
	eventClose
)

type rpcKind int

const (
	rpcKindPing rpcKind = iota
	rpcKindAppend
)

type pingEvent struct {
	*hsm.StdEvent
	future *Future
}

func newPingEvent(future *Future) *pingEvent {
	return &pingEvent{hsm.NewStdEvent(eventPing), future}
}

type commitEvent struct {
	*hsm.StdEvent
	index  uint64
	future *Future
}

func newCommitEvent(index uint64, future *Future) *commitEvent {
	return &commitEvent{hsm.NewStdEvent(eventCommit), index, future}
}

type rpcResultEvent struct {
	*hsm.StdEvent
	kind      rpcKind
	prevIndex uint64
	count     uint64
	response  *AppendEntriesResponse
	err       error
}

func newRPCResultEvent(kind rpcKind, prevIndex, count uint64, response *AppendEntriesResponse, err error) *rpcResultEvent {
	return &rpcResultEvent{hsm.NewStdEvent(eventRPCResult), kind, prevIndex, count, response, err}
}

type closeEvent struct {
	*hsm.StdEvent
}

func newCloseEvent() *closeEvent {
	return &closeEvent{hsm.NewStdEvent(eventClose)}
}
