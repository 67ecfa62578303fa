// Package process implements the Process role: the Paxos acceptor plus the
// peer-messaging endpoint every Process runs. Grounded on the shape of
// client/subscription.go (a struct wrapping locked shared state with a
// handful of subordinate subscriber loops) and paxos/acceptor.go's
// acceptor-state-machine shape, simplified to the in-memory
// promised_sn/accepted_value pair this system needs (no disk persistence,
// no multi-decree ballot history).
package process

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
	"paxfabric.io/server/transport"
)

// Process is a membership client, Paxos acceptor, and peer messaging
// endpoint.
type Process struct {
	logger log.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	acceptor *paxos.AcceptorState

	// viewMu guards selfId and view.
	viewMu sync.Mutex
	selfId common.PeerId
	view   common.View

	registryEndpoint common.Endpoint
	listener         net.Listener

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Process; it registers with the Registry once Join is
// called.
func New(logger log.Logger) *Process {
	return &Process{
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		acceptor: paxos.NewAcceptorState(),
		view:     make(common.View),
		stopCh:   make(chan struct{}),
	}
}

// Acceptor exposes the underlying acceptor state, used by tests that want
// to pre-seed an accepted value.
func (p *Process) Acceptor() *paxos.AcceptorState {
	return p.acceptor
}

// Join binds the peer listener, then registers with the Registry. A bind
// failure is common.ErrAddressInUse (the launcher retries on the next
// port); a failed registration unicast is
// common.ErrRegistryUnreachableAtStart (the process must terminate with a
// non-zero exit).
func (p *Process) Join(port uint16, registryEndpoint common.Endpoint) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrAddressInUse, err)
	}
	p.listener = ln
	p.registryEndpoint = registryEndpoint

	if _, err := transport.Send(registryEndpoint, codec.ConnectOnPort(port)); err != nil {
		ln.Close()
		return fmt.Errorf("%w: %v", common.ErrRegistryUnreachableAtStart, err)
	}
	p.logger.Log("msg", "Sent ConnectOnPort", "registry", registryEndpoint, "port", port)
	return nil
}

// Serve starts the three supervisor loops (registry heartbeat,
// random-peer-send, broadcast-peer) and runs the accept loop until Stop is
// called or the registry-heartbeat supervisor detects the Registry is
// dead, in which case the process terminates cleanly. A nil return
// corresponds to that clean shutdown; callers map it to exit code 0 and
// any other error to a non-zero exit.
func (p *Process) Serve() error {
	p.wg.Add(3)
	go p.registryHeartbeatSupervisor()
	go p.randomPeerSendSupervisor()
	go p.broadcastSupervisor()

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-p.stopCh:
				p.wg.Wait()
				return nil
			default:
				p.logger.Log("msg", "accept error", "error", err)
				continue
			}
		}
		go p.handleConnection(conn)
	}
}

// Stop asks every supervisor and the accept loop to exit.
func (p *Process) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		if p.listener != nil {
			p.listener.Close()
		}
	})
}

func (p *Process) handleConnection(conn net.Conn) {
	defer conn.Close()
	e, err := codec.ReadFramed(conn)
	if server.CheckWarn(err, p.logger) {
		return
	}

	switch e.Kind {
	case codec.KindRegistered:
		p.onRegistered(e.GivenId, e.View)
	case codec.KindUpdateRegisteredProcesses:
		p.onUpdateRegisteredProcesses(e.View)
	case codec.KindPrepare:
		p.onPrepare(e.SeqNumber)
	case codec.KindRequestAccept:
		p.onRequestAccept(e.SeqNumber, e.Value)
	case codec.KindMessage:
		p.onPeerMessage(e.From, e.Msg)
	default:
		p.logger.Log("msg", "unexpected event kind at Process", "kind", e.Kind)
	}
}

// snapshotView returns the cached self id and a clone of the cached view.
// Used by handlers and Status, which can afford to block; see
// trySnapshotView for supervisor use.
func (p *Process) snapshotView() (common.PeerId, common.View) {
	p.viewMu.Lock()
	defer p.viewMu.Unlock()
	return p.selfId, p.view.Clone()
}

// trySnapshotView is snapshotView, but returns ok=false instead of
// blocking when viewMu is contended. The random-peer-send and broadcast
// supervisors use this so a busy tick is skipped rather than stalling
// behind whichever handler currently holds the lock.
func (p *Process) trySnapshotView() (selfId common.PeerId, view common.View, ok bool) {
	if !p.viewMu.TryLock() {
		return 0, nil, false
	}
	defer p.viewMu.Unlock()
	return p.selfId, p.view.Clone(), true
}

// PeerCount reports the size of the cached view, used by
// statusreport.Reporter to publish the registered-peers gauge.
func (p *Process) PeerCount() int {
	p.viewMu.Lock()
	defer p.viewMu.Unlock()
	return len(p.view)
}

// Status renders an introspection snapshot (the Status(*status.Consumer)
// convention also used by registry.Registry).
func (p *Process) Status(sc *status.Consumer) {
	selfId, view := p.snapshotView()
	sc.Emitf("Process")
	sc.Emitf("- Self id: %d", selfId)
	sc.Emitf("- Cached peers: %d", len(view))
	sc.Emitf("- Promised sn: %d", p.acceptor.PromisedSn())
	sc.Emitf("- Accepted value: %v", p.acceptor.AcceptedValue())
}
