package paxos

import (
	"math/rand"
	"testing"

	"paxfabric.io/server/common"
)

func TestAcceptorPrepareAndAccept(t *testing.T) {
	a := NewAcceptorState()

	promised, prior := a.Prepare(5)
	if !promised || prior != nil {
		t.Fatalf("Prepare(5) = %v, %v; want true, nil", promised, prior)
	}
	if sn := a.PromisedSn(); sn != 5 {
		t.Fatalf("PromisedSn() = %d, want 5", sn)
	}

	accepted, v := a.RequestAccept(5, common.PaxosValue{SeqNumber: 5, Value: 42})
	if !accepted || v == nil || v.Value != 42 {
		t.Fatalf("RequestAccept(5, ...) = %v, %+v", accepted, v)
	}
	if got := a.AcceptedValue(); got == nil || got.Value != 42 {
		t.Fatalf("AcceptedValue() = %+v", got)
	}
}

func TestAcceptorRejectsStaleSeqNumber(t *testing.T) {
	a := NewAcceptorState()
	a.Prepare(10)

	promised, _ := a.Prepare(4)
	if promised {
		t.Fatal("expected Prepare(4) to be rejected after Prepare(10)")
	}
	accepted, _ := a.RequestAccept(4, common.PaxosValue{SeqNumber: 4, Value: 1})
	if accepted {
		t.Fatal("expected RequestAccept(4, ...) to be rejected after Prepare(10)")
	}
}

func TestAcceptorPrepareIsInclusive(t *testing.T) {
	// comparison is >=, not >.
	a := NewAcceptorState()
	a.Prepare(5)
	promised, _ := a.Prepare(5)
	if !promised {
		t.Fatal("expected Prepare(5) to succeed again (>= comparison)")
	}
}

// promised_sn is non-decreasing over the acceptor's life.
func TestAcceptorPromisedSnNonDecreasing(t *testing.T) {
	a := NewAcceptorState()
	last := uint32(0)
	seq := []uint32{1, 1, 5, 3, 7, 7, 2, 9}
	for _, sn := range seq {
		a.Prepare(sn)
		cur := a.PromisedSn()
		if cur < last {
			t.Fatalf("promised_sn decreased: %d -> %d", last, cur)
		}
		last = cur
	}
}

func TestProposerPhase1RequiresMoreThanTwoPeers(t *testing.T) {
	p := NewProposerState()
	if _, entered := p.EnterPhase1(2); entered {
		t.Fatal("expected EnterPhase1(2) to not enter Phase1")
	}
	if _, entered := p.EnterPhase1(3); !entered {
		t.Fatal("expected EnterPhase1(3) to enter Phase1")
	}
	if status, _ := p.Status(); status != Phase1 {
		t.Fatalf("status = %v, want Phase1", status)
	}
}

// Clean-slate consensus invents a value in [100, 1000).
func TestProposerCleanSlateInventsValue(t *testing.T) {
	p := NewProposerState()
	rng := rand.New(rand.NewSource(1))
	sn, _ := p.EnterPhase1(5)

	var result PromiseResult
	for i := 0; i < 3; i++ {
		r, handled := p.OnPromise(sn, nil, rng)
		if !handled {
			t.Fatalf("promise %d not handled", i)
		}
		if r.ReachedMajority {
			result = r
		}
	}
	if result.Chosen.Value < 100 || result.Chosen.Value >= 1000 {
		t.Fatalf("invented value %d out of range [100, 1000)", result.Chosen.Value)
	}
	if status, _ := p.Status(); status != Phase2 {
		t.Fatalf("status = %v, want Phase2", status)
	}

	reached := false
	for i := 0; i < 3; i++ {
		r, handled := p.OnAccepted(sn, result.Chosen)
		if !handled {
			t.Fatalf("accepted %d not handled", i)
		}
		if r {
			reached = true
		}
	}
	if !reached {
		t.Fatal("expected majority Accepted to reach consensus")
	}
	status, v := p.Status()
	if status != ConsensusReached || v != result.Chosen {
		t.Fatalf("status=%v value=%+v, want ConsensusReached/%+v", status, v, result.Chosen)
	}
}

// A prior accepted value carried back in a Promise wins over an invented
// one.
func TestProposerCarriesPriorAcceptedValue(t *testing.T) {
	p := NewProposerState()
	rng := rand.New(rand.NewSource(2))
	sn, _ := p.EnterPhase1(5)

	prior := &common.PaxosValue{SeqNumber: 7, Value: 42}
	var result PromiseResult
	votes := []*common.PaxosValue{nil, prior, nil}
	for _, v := range votes {
		r, _ := p.OnPromise(sn, v, rng)
		if r.ReachedMajority {
			result = r
		}
	}
	if result.Chosen.Value != 42 {
		t.Fatalf("chosen value = %d, want 42 (carried from prior accepted value)", result.Chosen.Value)
	}
}

// A Promise while NoConsensus is silently dropped.
func TestProposerDropsPromiseOutsidePhase1(t *testing.T) {
	p := NewProposerState()
	rng := rand.New(rand.NewSource(3))
	_, handled := p.OnPromise(0, nil, rng)
	if handled {
		t.Fatal("expected Promise while NoConsensus to be dropped")
	}
	if status, _ := p.Status(); status != NoConsensus {
		t.Fatalf("status = %v, want NoConsensus unchanged", status)
	}
}

func TestProposerDropsAcceptedOutsidePhase2(t *testing.T) {
	p := NewProposerState()
	_, handled := p.OnAccepted(0, common.PaxosValue{})
	if handled {
		t.Fatal("expected Accepted while not in Phase2 to be dropped")
	}
}

// Membership invalidates consensus.
func TestProposerResetReturnsToNoConsensus(t *testing.T) {
	p := NewProposerState()
	p.EnterPhase1(5)
	p.Reset()
	status, _ := p.Status()
	if status != NoConsensus {
		t.Fatalf("status = %v, want NoConsensus after Reset", status)
	}
}

func TestProposerStaleSeqNumberPromiseDropped(t *testing.T) {
	p := NewProposerState()
	rng := rand.New(rand.NewSource(4))
	sn, _ := p.EnterPhase1(5)
	_, handled := p.OnPromise(sn+100, nil, rng)
	if handled {
		t.Fatal("expected Promise for a stale/foreign seq_number to be dropped")
	}
}
