package registry

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/go-kit/kit/log"

	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
)

func testLogger() log.Logger {
	return log.NewNopLogger()
}

// startRegistry picks a free port, starts Serve on it in the background and
// returns the Registry plus a dialable endpoint for it.
func startRegistry(t *testing.T) (*Registry, common.Endpoint) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	r := New(testLogger())
	go func() {
		_ = r.Serve(uint16(port))
	}()
	t.Cleanup(r.Stop)
	time.Sleep(20 * time.Millisecond) // let the listener bind
	return r, common.Endpoint(fmt.Sprintf("127.0.0.1:%d", port))
}

func dial(t *testing.T, endpoint common.Endpoint, e codec.Event) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", string(endpoint), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := codec.WriteFramed(conn, e); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// fakeProcessListener accepts connections and returns each decoded event,
// simulating a Process endpoint for Registered/UpdateRegisteredProcesses
// replies.
func fakeProcessListener(t *testing.T) (common.Endpoint, <-chan codec.Event) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	out := make(chan codec.Event, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				e, err := codec.ReadFramed(conn)
				if err == nil {
					out <- e
				}
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	return common.Endpoint("127.0.0.1:" + portStr), out
}

func portOf(t *testing.T, ep common.Endpoint) uint16 {
	t.Helper()
	_, p, err := net.SplitHostPort(string(ep))
	if err != nil {
		t.Fatalf("SplitHostPort(%s): %v", ep, err)
	}
	var port int
	fmt.Sscanf(p, "%d", &port)
	return uint16(port)
}

// Ids are assigned starting at 1 and increase strictly; the reply carries
// the registering peer in the view.
func TestConnectOnPortAssignsMonotonicIds(t *testing.T) {
	_, registryAddr := startRegistry(t)

	ep1, events1 := fakeProcessListener(t)
	dial(t, registryAddr, codec.ConnectOnPort(portOf(t, ep1)))

	select {
	case e := <-events1:
		if e.Kind != codec.KindRegistered || e.GivenId != 1 {
			t.Fatalf("unexpected event: %+v", e)
		}
		if e.View[1] != ep1 {
			t.Fatalf("view missing self entry: %+v", e.View)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Registered")
	}

	ep2, events2 := fakeProcessListener(t)
	dial(t, registryAddr, codec.ConnectOnPort(portOf(t, ep2)))

	select {
	case e := <-events2:
		if e.GivenId != 2 {
			t.Fatalf("expected second registrant to get id 2, got %d", e.GivenId)
		}
		if len(e.View) != 2 {
			t.Fatalf("expected view of size 2, got %+v", e.View)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second Registered")
	}
}

// A Promise while NoConsensus is silently dropped — no panic, no state
// change.
func TestOnPromiseWhileNoConsensusIsDropped(t *testing.T) {
	r := New(testLogger())
	r.onPromise(0, nil)
	st, _ := r.proposer.Status()
	if st.String() != "NoConsensus" {
		t.Fatalf("status = %v, want NoConsensus", st)
	}
}

// Membership change resets an in-flight instance.
func TestMembershipChangeResetsConsensus(t *testing.T) {
	r := New(testLogger())
	r.view[1] = "127.0.0.1:1"
	r.view[2] = "127.0.0.1:2"
	r.view[3] = "127.0.0.1:3"
	r.proposer.EnterPhase1(len(r.view))

	// None of these loopback ports are actually listening, so every peer
	// looks dead and gets evicted.
	r.heartbeatOnce()

	st, _ := r.proposer.Status()
	if st.String() != "NoConsensus" {
		t.Fatalf("status = %v, want NoConsensus after eviction", st)
	}
	if len(r.view) != 0 {
		t.Fatalf("expected all peers evicted, view = %+v", r.view)
	}
}

// Majority safety, exercised at the handler level: consensus is reached
// only once a majority of Accepted votes for the same value have been
// observed.
func TestConsensusReachedRequiresMajority(t *testing.T) {
	r := New(testLogger())
	r.view[1] = "127.0.0.1:1"
	r.view[2] = "127.0.0.1:2"
	r.view[3] = "127.0.0.1:3"
	seqNumber, entered := r.proposer.EnterPhase1(len(r.view))
	if !entered {
		t.Fatal("expected EnterPhase1 to succeed with 3 peers")
	}

	r.onPromise(seqNumber, nil)
	r.onPromise(seqNumber, nil)
	st, val := r.proposer.Status()
	if st.String() != "Phase2" {
		t.Fatalf("status = %v, want Phase2 after 2/3 promises", st)
	}

	r.onAccepted(seqNumber, &val)
	st, _ = r.proposer.Status()
	if st.String() != "Phase2" {
		t.Fatalf("status = %v, want Phase2 after only 1 Accepted", st)
	}

	r.onAccepted(seqNumber, &val)
	st, gotVal := r.proposer.Status()
	if st.String() != "ConsensusReached" {
		t.Fatalf("status = %v, want ConsensusReached after 2/3 Accepted", st)
	}
	if gotVal != val {
		t.Fatalf("consensus value = %+v, want %+v", gotVal, val)
	}
}
