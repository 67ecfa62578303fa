package registry

import (
	"fmt"
	"time"

	server "paxfabric.io/server"
	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
	"paxfabric.io/server/transport"
)

// onConnectOnPort handles ConnectOnPort(port) from peer address P: assign
// the next PeerId, add it to the view, invalidate any in-flight consensus,
// and reply with Registered. This runs per-connection from the accept
// loop rather than from a supervisor, so it blocks on membershipMu and on
// proposer.Reset rather than trying and skipping; there is no "next tick"
// to defer a registration to.
func (r *Registry) onConnectOnPort(remoteHost string, port uint16) {
	endpoint := common.Endpoint(fmt.Sprintf("%s:%d", remoteHost, port))

	r.membershipMu.Lock()
	r.lastRegisteredId++
	givenId := r.lastRegisteredId
	r.view[givenId] = endpoint
	view := r.view.Clone()
	r.membershipMu.Unlock()

	r.proposer.Reset()

	r.logger.Log("msg", "Process registered", "id", givenId, "endpoint", endpoint)

	if _, err := transport.Send(endpoint, codec.Registered(givenId, view)); err != nil {
		// Send failures are logged and ignored; the new peer will still be
		// heartbeat-probed like any other member.
		server.CheckWarn(err, r.logger)
	}
}

func (r *Registry) broadcastSupervisor() {
	defer r.wg.Done()
	ticker := time.NewTicker(server.ViewBroadcastInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.broadcastViewOnce()
		}
	}
}

// broadcastViewOnce sends the current view to every member. If
// membershipMu is contended it skips silently and waits for the next
// tick, so the broadcast driver never blocks behind the heartbeat or
// consensus drivers.
func (r *Registry) broadcastViewOnce() {
	view, ok := r.trySnapshotView()
	if !ok || len(view) == 0 {
		return
	}
	// Per-peer failures are tolerated; a dead peer is caught by the
	// heartbeat supervisor instead.
	_ = transport.Broadcast(view, codec.UpdateRegisteredProcesses(view))
}

// heartbeatSupervisor runs the periodic liveness sweep, jittered to
// 10-20s per tick (server.JitterRange).
func (r *Registry) heartbeatSupervisor() {
	defer r.wg.Done()
	for {
		interval := r.jitter(server.HeartbeatIntervalMin, server.HeartbeatIntervalMax)
		select {
		case <-r.stopCh:
			return
		case <-time.After(interval):
			r.heartbeatOnce()
		}
	}
}

// heartbeatOnce probes every member for liveness and evicts the
// unreachable ones. Every touch of shared state here is try-lock-and-skip:
// a contended membershipMu or proposer means some other driver is mid-tick,
// and this sweep simply waits for the next one rather than blocking.
func (r *Registry) heartbeatOnce() {
	view, ok := r.trySnapshotView()
	if !ok || len(view) == 0 {
		return
	}

	dead := make([]common.PeerId, 0)
	for id, endpoint := range view {
		if !transport.IsAlive(endpoint) {
			dead = append(dead, id)
		}
	}
	if len(dead) == 0 {
		return
	}

	if !r.membershipMu.TryLock() {
		return
	}
	for _, id := range dead {
		delete(r.view, id)
	}
	r.membershipMu.Unlock()

	for _, id := range dead {
		r.logger.Log("msg", "Process evicted (unreachable)", "id", id)
	}
	r.proposer.TryReset()
}
