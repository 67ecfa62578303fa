package process

import (
	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
	"paxfabric.io/server/transport"
)

// onRegistered handles Registered{given_id, view}: atomically replace
// self_id and the cached view.
func (p *Process) onRegistered(givenId common.PeerId, view common.View) {
	p.viewMu.Lock()
	p.selfId = givenId
	p.view = view.Clone()
	p.viewMu.Unlock()
	p.logger.Log("msg", "Registered", "self_id", givenId, "peers", len(view))
}

// onUpdateRegisteredProcesses handles UpdateRegisteredProcesses(view):
// atomically replace the cached view.
func (p *Process) onUpdateRegisteredProcesses(view common.View) {
	p.viewMu.Lock()
	p.view = view.Clone()
	p.viewMu.Unlock()
}

// onPrepare handles Prepare{sn} from the Registry.
func (p *Process) onPrepare(sn uint32) {
	promised, prior := p.acceptor.Prepare(sn)
	if !promised {
		p.replyToRegistry(codec.KO())
		return
	}
	p.replyToRegistry(codec.Promise(sn, prior))
}

// onRequestAccept handles RequestAccept{sn, v}.
func (p *Process) onRequestAccept(sn uint32, v *common.PaxosValue) {
	if v == nil {
		// Malformed RequestAccept with no value; nothing to accept.
		p.replyToRegistry(codec.KO())
		return
	}
	accepted, accValue := p.acceptor.RequestAccept(sn, *v)
	if !accepted {
		p.replyToRegistry(codec.KO())
		return
	}
	p.replyToRegistry(codec.Accepted(sn, accValue))
}

// onPeerMessage handles a peer Message{from, msg}: logged, no state
// change.
func (p *Process) onPeerMessage(from common.PeerId, msg string) {
	p.logger.Log("msg", "Peer message received", "from", from, "body", msg)
}

func (p *Process) replyToRegistry(e codec.Event) {
	if _, err := transport.Send(p.registryEndpoint, e); err != nil {
		// Acceptor replies are unicasts like any other; failures are
		// logged and swallowed — the Registry's own consensus driver tick
		// simply won't see this vote.
		p.logger.Log("msg", "failed to reply to registry", "error", err)
	}
}
