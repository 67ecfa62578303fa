package transport

import (
	"net"
	"testing"
	"time"

	"paxfabric.io/server/codec"
	"paxfabric.io/server/common"
)

func listen(t *testing.T) (common.Endpoint, <-chan codec.Event) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	events := make(chan codec.Event, 8)
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
					events <- e
				}
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return common.Endpoint(ln.Addr().String()), events
}

func TestSendDeliversEvent(t *testing.T) {
	ep, events := listen(t)
	if _, err := Send(ep, codec.Prepare(3)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case e := <-events:
		if e.Kind != codec.KindPrepare || e.SeqNumber != 3 {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestIsAliveTrueForListeningEndpoint(t *testing.T) {
	ep, _ := listen(t)
	if !IsAlive(ep) {
		t.Fatal("expected IsAlive to be true")
	}
}

func TestIsAliveFalseForDeadEndpoint(t *testing.T) {
	ep, events := listen(t)
	_ = events
	// Grab the port then immediately stop listening so nothing answers it.
	host := string(ep)
	t.Cleanup(func() {})
	ln2, _ := net.Listen("tcp", "127.0.0.1:0")
	deadEp := common.Endpoint(ln2.Addr().String())
	ln2.Close()
	if IsAlive(deadEp) {
		t.Fatal("expected IsAlive to be false for a closed port")
	}
	_ = host
}

func TestBroadcastBestEffort(t *testing.T) {
	ep1, events1 := listen(t)
	ln2, _ := net.Listen("tcp", "127.0.0.1:0")
	deadEp := common.Endpoint(ln2.Addr().String())
	ln2.Close()

	view := common.View{1: ep1, 2: deadEp}
	err := Broadcast(view, codec.PeerMessage(9, "hi"))
	if err == nil {
		t.Fatal("expected partial-failure error from Broadcast")
	}
	select {
	case e := <-events1:
		if e.Msg != "hi" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered event")
	}
}
