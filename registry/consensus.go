package registry

import (
	"time"

	server "paxfabric.io/server"
	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
	"paxfabric.io/server/paxos"
	"paxfabric.io/server/transport"
)

// consensusSupervisor runs the proposer driver: every tick it inspects the
// proposer's status and, from NoConsensus with more than 2 peers, enters
// Phase 1.
func (r *Registry) consensusSupervisor() {
	defer r.wg.Done()
	ticker := time.NewTicker(server.ConsensusDriverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.consensusTick()
		}
	}
}

// consensusTick is entirely try-lock-and-skip: if the proposer or the
// membership view is busy with something else this instant, the tick is
// abandoned and retried next period rather than blocking the other
// supervisors behind it.
func (r *Registry) consensusTick() {
	st, v, ok := r.proposer.TryStatus()
	if !ok {
		return
	}
	switch st {
	case paxos.NoConsensus:
		view, ok := r.trySnapshotView()
		if !ok {
			return
		}
		seqNumber, entered, ok := r.proposer.TryEnterPhase1(len(view))
		if !ok || !entered {
			return
		}
		r.logger.Log("msg", "Entering Phase1", "seq_number", seqNumber, "peers", len(view))
		_ = transport.Broadcast(view, codec.Prepare(seqNumber))
	case paxos.Phase1, paxos.Phase2:
		r.logger.Log("msg", "Consensus in progress", "status", st)
	case paxos.ConsensusReached:
		r.logger.Log("msg", "Consensus reached, idle", "value", v)
	}
}

// onPromise handles an incoming Promise{sn, prior?}. Invoked from the
// per-connection event handler rather than a supervisor, so it blocks on
// rngMu and the proposer lock rather than skipping; there is no later tick
// to hand a specific peer's reply to.
func (r *Registry) onPromise(sn uint32, prior *common.PaxosValue) {
	r.rngMu.Lock()
	result, handled := r.proposer.OnPromise(sn, prior, r.rng)
	r.rngMu.Unlock()

	if !handled {
		// Stale or out-of-phase Promise: silently dropped.
		return
	}
	if !result.ReachedMajority {
		return
	}

	view := r.snapshotView()
	r.logger.Log("msg", "Entering Phase2", "seq_number", result.SeqNumber, "value", result.Chosen)
	_ = transport.Broadcast(view, codec.RequestAccept(result.SeqNumber, result.Chosen))
}

// onAccepted handles an incoming Accepted{sn, v}.
func (r *Registry) onAccepted(sn uint32, v *common.PaxosValue) {
	if v == nil {
		return
	}
	reached, handled := r.proposer.OnAccepted(sn, *v)
	if !handled {
		return
	}
	if reached {
		r.logger.Log("msg", "Consensus reached", "value", *v)
	}
}

// onKO handles a KO from an acceptor: logged, no state change. This system
// does not itself retry on KO — the next membership change or external
// restart is what drives progress; see DESIGN.md.
func (r *Registry) onKO() {
	r.logger.Log("msg", "Received KO from acceptor")
}
