// Package codec implements the self-describing tagged-union wire event:
// one JSON blob per connection with an explicit "kind" field, so decoding
// is a single unmarshal plus a kind check rather than trying each event
// family in turn.
package codec

import (
	"encoding/json"
	"fmt"

	"paxfabric.io/server/common"
)

// Kind disambiguates the event families on the wire.
type Kind string

const (
	KindConnectOnPort             Kind = "ConnectOnPort"
	KindMessage                   Kind = "Message"
	KindRegistered                Kind = "Registered"
	KindUpdateRegisteredProcesses Kind = "UpdateRegisteredProcesses"
	KindPrepare                   Kind = "Prepare"
	KindRequestAccept             Kind = "RequestAccept"
	KindPromise                   Kind = "Promise"
	KindAccepted                  Kind = "Accepted"
	KindKO                        Kind = "KO"
)

// Event is the envelope every family serializes through. Only the fields
// relevant to Kind are populated; the rest are left at their zero value.
type Event struct {
	Kind Kind `json:"kind"`

	// ConnectOnPort
	Port uint16 `json:"port,omitempty"`

	// Message
	From common.PeerId `json:"from,omitempty"`
	Msg  string         `json:"msg,omitempty"`

	// Registered
	GivenId common.PeerId `json:"given_id,omitempty"`
	View    common.View   `json:"view,omitempty"`

	// Prepare / RequestAccept / Promise / Accepted
	SeqNumber uint32             `json:"seq_number,omitempty"`
	Value     *common.PaxosValue `json:"value,omitempty"`
}

// ConnectOnPort builds a Process→Registry ConnectOnPort event.
func ConnectOnPort(port uint16) Event {
	return Event{Kind: KindConnectOnPort, Port: port}
}

// PeerMessage builds a peer↔peer Message event.
func PeerMessage(from common.PeerId, msg string) Event {
	return Event{Kind: KindMessage, From: from, Msg: msg}
}

// Registered builds a Registry→Process Registered event.
func Registered(givenId common.PeerId, view common.View) Event {
	return Event{Kind: KindRegistered, GivenId: givenId, View: view}
}

// UpdateRegisteredProcesses builds a Registry→Process view refresh.
func UpdateRegisteredProcesses(view common.View) Event {
	return Event{Kind: KindUpdateRegisteredProcesses, View: view}
}

// Prepare builds a Proposer→Acceptor Prepare event.
func Prepare(seqNumber uint32) Event {
	return Event{Kind: KindPrepare, SeqNumber: seqNumber}
}

// RequestAccept builds a Proposer→Acceptor RequestAccept event.
func RequestAccept(seqNumber uint32, value common.PaxosValue) Event {
	return Event{Kind: KindRequestAccept, SeqNumber: seqNumber, Value: &value}
}

// Promise builds an Acceptor→Proposer Promise event. prior is nil when the
// acceptor has never accepted a value.
func Promise(seqNumber uint32, prior *common.PaxosValue) Event {
	return Event{Kind: KindPromise, SeqNumber: seqNumber, Value: prior}
}

// Accepted builds an Acceptor→Proposer Accepted event.
func Accepted(seqNumber uint32, value *common.PaxosValue) Event {
	return Event{Kind: KindAccepted, SeqNumber: seqNumber, Value: value}
}

// KO builds an Acceptor→Proposer KO event.
func KO() Event {
	return Event{Kind: KindKO}
}

func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses raw wire bytes into an Event. Unknown or malformed bytes
// fail closed with common.ErrDecodeFailure.
func Decode(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", common.ErrDecodeFailure, err)
	}
	switch e.Kind {
	case KindConnectOnPort, KindMessage, KindRegistered, KindUpdateRegisteredProcesses,
		KindPrepare, KindRequestAccept, KindPromise, KindAccepted, KindKO:
		return e, nil
	default:
		return Event{}, fmt.Errorf("%w: unknown kind %q", common.ErrDecodeFailure, e.Kind)
	}
}
