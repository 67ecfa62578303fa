package paxos

import (
	"math/rand"
	"sync"

	server "paxfabric.io/server"
	"paxfabric.io/server/common"
)

// Status is the Registry-side proposer phase.
type Status int

const (
	NoConsensus Status = iota
	Phase1
	Phase2
	ConsensusReached
)

func (s Status) String() string {
	switch s {
	case NoConsensus:
		return "NoConsensus"
	case Phase1:
		return "Phase1"
	case Phase2:
		return "Phase2"
	case ConsensusReached:
		return "ConsensusReached"
	default:
		return "Unknown"
	}
}

// ProposerState is the Registry's single-consensus-instance proposer
// state. proposermanager.go fans a txn out across a pool of
// sharded, disk-backed Proposer objects (one per in-flight transaction,
// persisted so it survives restart); this system runs exactly one
// consensus instance at a time, entirely in memory, so ProposerState
// collapses that pool down to a single struct behind one lock.
type ProposerState struct {
	mu sync.Mutex

	status Status
	value  common.PaxosValue // the RequestAccept candidate in Phase2, the chosen value once ConsensusReached

	// nextSeqNumber is bumped every time Phase 1 is (re-)entered, treating
	// the source's fixed seq_number as a per-instance ballot counter — see
	// DESIGN.md.
	nextSeqNumber uint32
	seqNumber     uint32 // the ballot this instance is running under

	majority           int // floor(N/2)+1, snapshotted when Phase 1 was entered
	promisesReceived   int
	acceptedValuesSeen []*common.PaxosValue
	acceptedReceived   int
}

func NewProposerState() *ProposerState {
	return &ProposerState{status: NoConsensus}
}

// Status returns the current phase and the proposer's value: the candidate
// sent in RequestAccept while in Phase2, the chosen value once
// ConsensusReached; in the other phases the value is not meaningful. See
// TryStatus for the supervisor-tick counterpart.
func (p *ProposerState) Status() (Status, common.PaxosValue) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.value
}

// TryStatus is Status, but returns ok=false instead of blocking when
// contended; the consensus driver uses it to skip a busy tick.
func (p *ProposerState) TryStatus() (status Status, value common.PaxosValue, ok bool) {
	if !p.mu.TryLock() {
		return 0, common.PaxosValue{}, false
	}
	defer p.mu.Unlock()
	return p.status, p.value, true
}

func (p *ProposerState) Counts() (promisesReceived, acceptedReceived int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.promisesReceived, p.acceptedReceived
}

// Reset transitions to NoConsensus, used whenever membership changes
// invalidate an in-flight instance.
func (p *ProposerState) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

// TryReset is Reset, but returns false instead of blocking when
// contended; the heartbeat supervisor skips the reset this tick rather
// than stalling (the next membership event retries).
func (p *ProposerState) TryReset() (ok bool) {
	if !p.mu.TryLock() {
		return false
	}
	defer p.mu.Unlock()
	p.resetLocked()
	return true
}

func (p *ProposerState) resetLocked() {
	p.status = NoConsensus
	p.promisesReceived = 0
	p.acceptedValuesSeen = nil
	p.acceptedReceived = 0
}

// EnterPhase1 transitions NoConsensus → Phase1 if viewSize qualifies
// (strictly more than 2 peers) and returns the ballot to Prepare with and
// whether the transition happened. viewSize snapshots N for the whole
// instance, keeping the quorum stable across both phases.
func (p *ProposerState) EnterPhase1(viewSize int) (seqNumber uint32, entered bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seqNumber, entered, _ = p.enterPhase1Locked(viewSize)
	return seqNumber, entered
}

// TryEnterPhase1 is EnterPhase1, but returns acquired=false when
// contended; the consensus driver skips this tick rather than stalling.
func (p *ProposerState) TryEnterPhase1(viewSize int) (seqNumber uint32, entered bool, acquired bool) {
	if !p.mu.TryLock() {
		return 0, false, false
	}
	defer p.mu.Unlock()
	seqNumber, entered, _ = p.enterPhase1Locked(viewSize)
	return seqNumber, entered, true
}

func (p *ProposerState) enterPhase1Locked(viewSize int) (seqNumber uint32, entered bool, _ struct{}) {
	if p.status != NoConsensus || viewSize <= 2 {
		return 0, false, struct{}{}
	}
	p.nextSeqNumber++
	p.seqNumber = p.nextSeqNumber
	p.majority = common.Majority(viewSize)
	p.promisesReceived = 0
	p.acceptedValuesSeen = nil
	p.status = Phase1
	return p.seqNumber, true, struct{}{}
}

// PromiseResult is returned by OnPromise to tell the caller what, if
// anything, it must broadcast next.
type PromiseResult struct {
	ReachedMajority bool
	SeqNumber       uint32
	Chosen          common.PaxosValue
}

// OnPromise handles a Promise{sn, prior?} while in Phase1. A promise for
// a sequence number other than the instance's current ballot, or one
// arriving outside Phase1, is a stale/duplicate message and is silently
// dropped. Invoked from the per-connection event handler, so it blocks on
// the lock rather than skipping.
func (p *ProposerState) OnPromise(sn uint32, prior *common.PaxosValue, rng *rand.Rand) (result PromiseResult, handled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != Phase1 || sn != p.seqNumber {
		return PromiseResult{}, false
	}

	p.promisesReceived++
	p.acceptedValuesSeen = append(p.acceptedValuesSeen, prior)

	if p.promisesReceived < p.majority {
		return PromiseResult{}, true
	}

	chosen := highestSeqNumberValue(p.acceptedValuesSeen)
	if chosen == nil {
		invented := common.PaxosValue{
			SeqNumber: p.seqNumber,
			Value:     uint32(server.InventedValueMin + rng.Intn(server.InventedValueMax-server.InventedValueMin)),
		}
		chosen = &invented
	}

	p.status = Phase2
	p.promisesReceived = 0
	p.acceptedValuesSeen = nil
	p.acceptedReceived = 0
	p.value = *chosen

	return PromiseResult{ReachedMajority: true, SeqNumber: p.seqNumber, Chosen: *chosen}, true
}

// highestSeqNumberValue returns the accepted value with the greatest
// embedded seq_number among seen, or nil if every entry is nil.
func highestSeqNumberValue(seen []*common.PaxosValue) *common.PaxosValue {
	var best *common.PaxosValue
	for _, v := range seen {
		if v == nil {
			continue
		}
		if best == nil || v.SeqNumber > best.SeqNumber {
			best = v
		}
	}
	return best
}

// OnAccepted handles an Accepted{sn, v} while in Phase2. Returns
// reached=true exactly once, the tick majority is first met.
func (p *ProposerState) OnAccepted(sn uint32, v common.PaxosValue) (reached bool, handled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != Phase2 || sn != p.seqNumber {
		return false, false
	}

	p.acceptedReceived++
	if p.acceptedReceived < p.majority {
		return false, true
	}

	p.status = ConsensusReached
	p.value = v
	p.acceptedReceived = 0
	return true, true
}
