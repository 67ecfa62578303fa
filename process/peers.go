package process

import (
	"time"

	server "paxfabric.io/server"
	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
	"paxfabric.io/server/transport"
)

// registryHeartbeatSupervisor probes the Registry for liveness on a fixed
// interval. If it reports dead, the process terminates with exit code 0.
func (p *Process) registryHeartbeatSupervisor() {
	defer p.wg.Done()
	ticker := time.NewTicker(server.ProcessRegistryHeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if !transport.IsAlive(p.registryEndpoint) {
				p.logger.Log("msg", "Registry unreachable, shutting down")
				p.Stop()
				return
			}
		}
	}
}

// randomPeerSendSupervisor periodically, if the cached view has at least
// two entries (self + another), unicasts a message to one uniformly random
// peer other than self.
func (p *Process) randomPeerSendSupervisor() {
	defer p.wg.Done()
	ticker := time.NewTicker(server.ProcessRandomPeerSendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.randomPeerSendOnce()
		}
	}
}

// randomPeerSendOnce skips silently if viewMu or rngMu is contended,
// waiting for the next tick rather than blocking behind an event handler
// or the broadcast supervisor.
func (p *Process) randomPeerSendOnce() {
	selfId, view, ok := p.trySnapshotView()
	if !ok || len(view) < 2 {
		return
	}
	target, ok := p.pickRandomPeer(selfId, view)
	if !ok {
		return
	}
	_, _ = transport.Send(view[target], codec.PeerMessage(selfId, "P2P message"))
}

// pickRandomPeer returns a uniformly random member of view other than
// selfId. It returns ok=false both when there is no such candidate and
// when rngMu is momentarily held by a concurrent pickRandomPeer call.
func (p *Process) pickRandomPeer(selfId common.PeerId, view common.View) (common.PeerId, bool) {
	candidates := make([]common.PeerId, 0, len(view))
	for id := range view {
		if id != selfId {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	if !p.rngMu.TryLock() {
		return 0, false
	}
	idx := p.rng.Intn(len(candidates))
	p.rngMu.Unlock()
	return candidates[idx], true
}

// broadcastSupervisor periodically, if the cached view has at least two
// entries, unicasts a message to every peer in the view except self.
func (p *Process) broadcastSupervisor() {
	defer p.wg.Done()
	ticker := time.NewTicker(server.ProcessBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.broadcastOnce()
		}
	}
}

// broadcastOnce skips silently if viewMu is contended, waiting for the
// next tick.
func (p *Process) broadcastOnce() {
	selfId, view, ok := p.trySnapshotView()
	if !ok || len(view) < 2 {
		return
	}
	// Best-effort: a failed send to one peer does not stop the others.
	_ = transport.BroadcastExcept(view, selfId, codec.PeerMessage(selfId, "Broadcast message"))
}
