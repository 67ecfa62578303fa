// Package registry implements the Registry role: the membership authority
// and Paxos proposer. It is grounded on the shape of
// network/connectionmanager.go (one long-lived manager owning locked
// shared state plus a handful of subordinate supervisor loops) and
// topologytransmogrifier/task4quiet.go's periodic-Tick pattern, collapsed
// to a single in-memory membership view and a single-instance proposer
// (no persisted topology, no multi-decree migration).
package registry

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	server "paxfabric.io/server"
	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
	"paxfabric.io/server/paxos"
	"paxfabric.io/server/status"
)

// Registry is the single, well-known membership authority and proposer.
type Registry struct {
	logger log.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	// membershipMu guards view and lastRegisteredId.
	membershipMu     sync.Mutex
	view             common.View
	lastRegisteredId common.PeerId

	proposer *paxos.ProposerState

	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Registry; it does not yet bind a listener or start any
// supervisor (see Serve).
func New(logger log.Logger) *Registry {
	return &Registry{
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		view:     make(common.View),
		proposer: paxos.NewProposerState(),
		stopCh:   make(chan struct{}),
	}
}

// Serve binds 0.0.0.0:port, starts the view-broadcast, heartbeat and
// consensus-driver supervisors, and runs the accept loop until Stop is
// called. A bind failure is reported as common.ErrAddressInUse so the
// launcher (cmd/fabricd) can hop to the next port.
func (r *Registry) Serve(port uint16) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrAddressInUse, err)
	}
	r.listener = ln
	r.logger.Log("msg", "Registry listening", "port", port)

	r.wg.Add(3)
	go r.broadcastSupervisor()
	go r.heartbeatSupervisor()
	go r.consensusSupervisor()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-r.stopCh:
				return nil
			default:
				r.logger.Log("msg", "accept error", "error", err)
				continue
			}
		}
		go r.handleConnection(conn)
	}
}

// Stop closes the listener and asks every supervisor to exit.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.listener != nil {
			r.listener.Close()
		}
	})
	r.wg.Wait()
}

func (r *Registry) handleConnection(conn net.Conn) {
	defer conn.Close()
	e, err := codec.ReadFramed(conn)
	if server.CheckWarn(err, r.logger) {
		return
	}

	remoteHost, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if server.CheckWarn(err, r.logger) {
		return
	}

	switch e.Kind {
	case codec.KindConnectOnPort:
		r.onConnectOnPort(remoteHost, e.Port)
	case codec.KindPromise:
		r.onPromise(e.SeqNumber, e.Value)
	case codec.KindAccepted:
		r.onAccepted(e.SeqNumber, e.Value)
	case codec.KindKO:
		r.onKO()
	default:
		// The Registry never originates Prepare/RequestAccept requests to
		// itself and has no use for peer Messages; anything else that
		// decoded cleanly but targets the wrong role is logged and dropped.
		r.logger.Log("msg", "unexpected event kind at Registry", "kind", e.Kind)
	}
}

// snapshotView returns a clone of the current view; callers must never
// hold membershipMu across a network send. See trySnapshotView for
// supervisor use.
func (r *Registry) snapshotView() common.View {
	r.membershipMu.Lock()
	defer r.membershipMu.Unlock()
	return r.view.Clone()
}

// trySnapshotView is snapshotView, but returns ok=false when membershipMu
// is contended, so a busy supervisor tick is skipped instead of stalling.
func (r *Registry) trySnapshotView() (view common.View, ok bool) {
	if !r.membershipMu.TryLock() {
		return nil, false
	}
	defer r.membershipMu.Unlock()
	return r.view.Clone(), true
}

// Status renders an introspection snapshot, following the
// Status(*status.StatusConsumer) convention shared with paxos/acceptor.go
// and network/connectionmanager.go.
func (r *Registry) Status(sc *status.Consumer) {
	view := r.snapshotView()
	st, v := r.proposer.Status()
	sc.Emitf("Registry")
	sc.Emitf("- Peers: %d", len(view))
	for id, ep := range view {
		sc.Emitf("  - %d -> %s", id, ep)
	}
	sc.Emitf("- Proposer status: %v", st)
	if st == paxos.ConsensusReached {
		sc.Emitf("- Consensus value: %v", v)
	}
}

// PeerCount reports the current membership size, used by
// statusreport.Reporter to publish the registered-peers gauge.
func (r *Registry) PeerCount() int {
	r.membershipMu.Lock()
	defer r.membershipMu.Unlock()
	return len(r.view)
}

// ProposerMetrics reports the proposer's current phase and in-progress
// Promise/Accepted tallies, used by statusreport.Reporter.
func (r *Registry) ProposerMetrics() (phase, promisesReceived, acceptedReceived int) {
	st, _ := r.proposer.Status()
	promises, accepted := r.proposer.Counts()
	return int(st), promises, accepted
}

// jitter draws a random duration in [min, max) using the Registry's shared
// rng, serialized with rngMu since rand.Rand is not safe for concurrent use
// and the heartbeat supervisor shares this one generator with onPromise.
func (r *Registry) jitter(min, max time.Duration) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return server.JitterRange(r.rng, min, max)
}
