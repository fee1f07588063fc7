package dispatch

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"chordkv/internal/ring"
	"chordkv/internal/store"
	"chordkv/internal/wire"
)

// fakeSend records every outbound message keyed by destination
// "ip:port", so tests can assert on what a handler tried to send
// without a real transport.
type fakeSend struct {
	mu  sync.Mutex
	out map[string][]wire.Message
	err error
}

func newFakeSend() *fakeSend {
	return &fakeSend{out: make(map[string][]wire.Message)}
}

func (f *fakeSend) send(ip string, port int, msg wire.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s:%d", ip, port)
	f.out[key] = append(f.out[key], msg)
	return f.err
}

func (f *fakeSend) sentTo(ip string, port int) []wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out[fmt.Sprintf("%s:%d", ip, port)]
}

type fakeResults struct {
	mu  sync.Mutex
	got map[string]string
}

func newFakeResults() *fakeResults {
	return &fakeResults{got: make(map[string]string)}
}

func (f *fakeResults) Deliver(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got[key] = value
}

func newTestDispatcher(self ring.Peer) (*Dispatcher, *fakeSend) {
	fs := newFakeSend()
	d := New(ring.NewOverlay(self), store.New(), nil, newFakeResults(), fs.send)
	return d, fs
}

func TestHandlePutStoresAndReplicatesToSuccessor(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	successor := ring.NewPeer("10.0.0.2", 9002)

	d, fs := newTestDispatcher(self)
	d.overlay.SetSuccessor(successor)

	d.Handle(wire.NewPut("1", "k", "v", false), "client")

	if v, ok := d.store.Get("k"); !ok || v != "v" {
		t.Fatalf("store.Get(k) = %q, %v; want v, true", v, ok)
	}

	sent := fs.sentTo(successor.IP, successor.Port)
	if len(sent) != 1 || !sent[0].PutData.IsReplica {
		t.Fatalf("expected one replica PUT forwarded to successor, got %+v", sent)
	}
}

func TestHandlePutReplicaDoesNotReReplicate(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	successor := ring.NewPeer("10.0.0.2", 9002)

	d, fs := newTestDispatcher(self)
	d.overlay.SetSuccessor(successor)

	d.Handle(wire.NewPut("1", "k", "v", true), "client")

	if len(fs.sentTo(successor.IP, successor.Port)) != 0 {
		t.Fatal("a replica PUT must not trigger further replication")
	}
}

func TestHandleGetLocalHit(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	d, fs := newTestDispatcher(self)
	d.store.Put("k", "v")

	d.Handle(wire.NewGet("1", "k", "9.9.9.9", 7777), "client")

	sent := fs.sentTo("9.9.9.9", 7777)
	if len(sent) != 1 || sent[0].Type != wire.Result || sent[0].ResultData.Value != "v" {
		t.Fatalf("expected RESULT delivered to requester, got %+v", sent)
	}
}

func TestHandleGetMissForwardsToSuccessor(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	successor := ring.NewPeer("10.0.0.2", 9002)
	d, fs := newTestDispatcher(self)
	d.overlay.SetSuccessor(successor)

	d.Handle(wire.NewGet("1", "missing", "9.9.9.9", 7777), "client")

	sent := fs.sentTo(successor.IP, successor.Port)
	if len(sent) != 1 || sent[0].Type != wire.Get {
		t.Fatalf("expected GET forwarded to successor, got %+v", sent)
	}
}

func TestHandleGetMissAsOriginalRequesterDropsSilently(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	successor := ring.NewPeer("10.0.0.2", 9002)
	d, fs := newTestDispatcher(self)
	d.overlay.SetSuccessor(successor)

	d.Handle(wire.NewGet("1", "missing", self.IP, self.Port), "client")

	if len(fs.sentTo(successor.IP, successor.Port)) != 0 {
		t.Fatal("the original requester must not forward its own miss onward")
	}
}

func TestHandleJoinSplicesSingletonRing(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	d, fs := newTestDispatcher(self)
	d.store.Put("k", "v")

	joiner := ring.NewPeer("10.0.0.2", 9002)
	d.Handle(wire.NewJoin(joiner.ID.Decimal(), joiner.IP, joiner.Port), "client")

	if d.overlay.Successor().ID != joiner.ID {
		t.Fatalf("expected successor to become joiner after splice")
	}
	if pred := d.overlay.Predecessor(); pred == nil || pred.ID != joiner.ID {
		t.Fatalf("expected predecessor to become joiner on a singleton splice")
	}

	sent := fs.sentTo(joiner.IP, joiner.Port)
	var sawUpdate bool
	for _, m := range sent {
		if m.Type == wire.Update && m.UpdateData.Role == wire.RolePredecessor {
			sawUpdate = true
		}
	}
	if !sawUpdate {
		t.Fatalf("expected an UPDATE(predecessor) reply to the joiner, got %+v", sent)
	}
}

func TestHandleJoinForwardsWhenNotResponsible(t *testing.T) {
	// Build a self whose arc to its successor cannot possibly contain
	// every candidate ID, by making successor == self initially false
	// through a manual overlay with a non-self successor that excludes
	// the candidate. We force this deterministically using IDs derived
	// from fixed peer addresses, relying on ShouldSplice's arc check
	// rather than hand-picking hash collisions.
	self := ring.NewPeer("10.0.0.1", 9001)
	farSuccessor := ring.NewPeer("10.0.0.3", 9003)
	d, fs := newTestDispatcher(self)
	d.overlay.SetSuccessor(farSuccessor)

	// A joiner outside (self, farSuccessor] should be forwarded, not
	// spliced. We can't pick an ID outside the arc without knowing the
	// hash outcome, so instead verify the invariant: whichever decision
	// ShouldSplice makes, Handle behaves consistently with it.
	joiner := ring.NewPeer("10.0.0.9", 9009)
	want := d.overlay.ShouldSplice(joiner)

	d.Handle(wire.NewJoin(joiner.ID.Decimal(), joiner.IP, joiner.Port), "client")

	if want {
		if d.overlay.Successor().ID != joiner.ID {
			t.Fatalf("expected splice to accept joiner as successor")
		}
	} else {
		sent := fs.sentTo(farSuccessor.IP, farSuccessor.Port)
		if len(sent) != 1 || sent[0].Type != wire.Join {
			t.Fatalf("expected JOIN forwarded to current successor, got %+v", sent)
		}
		if d.overlay.Successor().ID != farSuccessor.ID {
			t.Fatalf("successor must be unchanged when forwarding a JOIN")
		}
	}
}

func TestHandleHeartbeatNotifiesAndAdoptsSuccessorWhenSingleton(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	d, _ := newTestDispatcher(self)

	sender := ring.NewPeer("10.0.0.5", 9005)
	d.Handle(wire.NewHeartbeat(sender.ID.Decimal(), sender.IP, sender.Port), "client")

	if pred := d.overlay.Predecessor(); pred == nil || pred.ID != sender.ID {
		t.Fatalf("expected HEARTBEAT sender to be notified as predecessor")
	}
	if d.overlay.Successor().ID != sender.ID {
		t.Fatalf("a singleton ring should adopt the heartbeat sender as successor")
	}
}

func TestHandleUpdateRedirectsNamedRole(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	d, _ := newTestDispatcher(self)

	newSucc := ring.NewPeer("10.0.0.7", 9007)
	d.Handle(wire.NewUpdate("1", wire.RoleSuccessor, newSucc.IP, newSucc.Port), "client")
	if d.overlay.Successor().ID != newSucc.ID {
		t.Fatalf("UPDATE(successor) should redirect the successor pointer")
	}

	newPred := ring.NewPeer("10.0.0.8", 9008)
	d.Handle(wire.NewUpdate("1", wire.RolePredecessor, newPred.IP, newPred.Port), "client")
	if pred := d.overlay.Predecessor(); pred == nil || pred.ID != newPred.ID {
		t.Fatalf("UPDATE(predecessor) should redirect the predecessor pointer")
	}
}

func TestHandleResultDeliversToSink(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	fs := newFakeSend()
	fr := newFakeResults()
	d := New(ring.NewOverlay(self), store.New(), nil, fr, fs.send)

	d.Handle(wire.NewResult("1", "k", "v"), "client")

	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.got["k"] != "v" {
		t.Fatalf("expected RESULT delivered to the sink, got %+v", fr.got)
	}
}

func TestHandoffKeysMovesOnlyKeysInNewPeersArc(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	d, fs := newTestDispatcher(self)

	// Seed many keys so at least some land in any candidate arc.
	for i := 0; i < 50; i++ {
		d.store.Put(fmt.Sprintf("key-%d", i), fmt.Sprintf("val-%d", i))
	}

	joiner := ring.NewPeer("10.0.0.2", 9002)
	d.handoffKeys(joiner)

	sent := fs.sentTo(joiner.IP, joiner.Port)
	for _, m := range sent {
		if m.Type != wire.Put {
			t.Fatalf("handoff must only send PUT messages, got %s", m.Type)
		}
		if !ring.InArc(ring.Hash(m.PutData.Key), self.ID, joiner.ID) {
			t.Fatalf("handed off key %q does not belong in (self, joiner]", m.PutData.Key)
		}
	}
}

func TestHandlePanicsAreRecovered(t *testing.T) {
	self := ring.NewPeer("10.0.0.1", 9001)
	fs := newFakeSend()
	d := New(ring.NewOverlay(self), store.New(), nil, panicSink{}, fs.send)

	done := make(chan struct{})
	go func() {
		d.Handle(wire.NewResult("1", "k", "v"), "client")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not recover from a handler panic")
	}
}

type panicSink struct{}

func (panicSink) Deliver(key, value string) {
	panic("boom")
}
