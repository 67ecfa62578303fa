// Package paxos implements the two roles of single-decree Paxos used by
// this system: the Registry's proposer state machine and every Process's
// acceptor state machine. Both are grounded on the paxos/acceptor.go
// state-machine-component shape (a struct holding mutable fields behind
// the owner's lock) but collapsed from its four-stage disk-backed
// acceptor lifecycle (receive ballots → write to disk → await locally
// complete → delete from disk) down to the two in-memory fields this
// system actually needs.
package paxos

import (
	"sync"

	"paxfabric.io/server/common"
)

// AcceptorState is the Process-side acceptor: a promised sequence number
// and the last value accepted, if any.
type AcceptorState struct {
	mu            sync.Mutex
	promisedSn    uint32
	acceptedValue *common.PaxosValue
}

func NewAcceptorState() *AcceptorState {
	return &AcceptorState{}
}

// Seed pre-loads an accepted value without going through
// Prepare/RequestAccept, used by tests.
func (a *AcceptorState) Seed(sn uint32, value uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.promisedSn = sn
	a.acceptedValue = &common.PaxosValue{SeqNumber: sn, Value: value}
}

func (a *AcceptorState) PromisedSn() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.promisedSn
}

// AcceptedValue returns a copy of the last accepted value, or nil.
func (a *AcceptorState) AcceptedValue() *common.PaxosValue {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.acceptedValue == nil {
		return nil
	}
	v := *a.acceptedValue
	return &v
}

// Prepare handles an incoming Prepare{sn}: if sn >= promised_sn, promise
// and return the prior accepted value (possibly nil); otherwise the
// caller should send KO. Comparison is >=, not >, matching the source
// this is modeled on even though canonical Paxos uses > — see DESIGN.md.
//
// Invoked per-connection from the event handler rather than a periodic
// supervisor, so it blocks on the lock instead of trying and skipping;
// there's no "next tick" to defer the request to.
func (a *AcceptorState) Prepare(sn uint32) (promised bool, prior *common.PaxosValue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sn < a.promisedSn {
		return false, nil
	}
	a.promisedSn = sn
	if a.acceptedValue == nil {
		return true, nil
	}
	v := *a.acceptedValue
	return true, &v
}

// RequestAccept handles an incoming RequestAccept{sn, v}: if sn >=
// promised_sn, accept v and return it for the Accepted reply; otherwise
// the caller should send KO.
func (a *AcceptorState) RequestAccept(sn uint32, v common.PaxosValue) (accepted bool, accValue *common.PaxosValue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sn < a.promisedSn {
		return false, nil
	}
	a.acceptedValue = &v
	out := v
	return true, &out
}
