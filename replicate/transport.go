package replicate

import (
	"github.com/hhkbp3/raftlog/persist"
)

// ErrorKind enumerates the remote-observed failure reasons an
// AppendEntriesResponse may carry alongside a transport-level error.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindNotLeader
	ErrorKindTermMismatch
	ErrorKindLogInconsistent
)

// AppendEntriesRequest is the wire shape of one replication RPC, carried
// opaquely through whatever Transport implementation a caller wires in.
type AppendEntriesRequest struct {
	CorrelationID uint64
	Term          uint64
	Leader        MemberID
	PrevLogIndex  uint64
	PrevLogTerm   uint64
	Entries       []*persist.Entry
	LeaderCommit  uint64
}

// AppendEntriesResponse is the follower's reply to an AppendEntriesRequest.
type AppendEntriesResponse struct {
	Term         uint64
	Succeeded    bool
	LastLogIndex uint64
	Err          ErrorKind
}

// Transport is the RPC client this package consumes to reach one peer. Its
// concrete implementation (HTTP, gRPC, in-memory) is out of scope; this
// package only depends on the interface.
type Transport interface {
	// Open establishes whatever connection state the implementation
	// needs before the first AppendEntries call.
	Open(addr persist.ServerAddr) error

	// Close releases connection resources. Safe to call more than once.
	Close() error

	// AppendEntries sends one replication RPC and blocks for the
	// response. Implementations should respect ctx-free blocking
	// semantics by returning promptly on Close.
	AppendEntries(req *AppendEntriesRequest) (*AppendEntriesResponse, error)
}
